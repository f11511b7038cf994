package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/Akashpatel2609/PrepWise/config"
	"github.com/Akashpatel2609/PrepWise/core"
	"github.com/Akashpatel2609/PrepWise/processors"
	"github.com/Akashpatel2609/PrepWise/server"
	"github.com/Akashpatel2609/PrepWise/storage"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if !cfg.HasValidAPI() {
		config.PrintConfigInstructions()
		fmt.Println("Warning: API configuration not found, speech transcription and question generation will use built-in fallbacks")
	}

	// 会话注册表：所有处理器共享同一份实时状态
	registry := core.NewSessionRegistry(cfg.MaxChunksPerSession, cfg.SessionTTL())
	registry.StartSweeper(context.Background(), cfg.SweepInterval())
	log.Printf("Session registry initialized (max %d chunks/session)", cfg.MaxChunksPerSession)

	decoder := processors.NewFFmpegDecoder(cfg.MaxParallelDecodes)
	transcriber := processors.PickTranscriber(cfg)
	extractor := processors.PickFeatureExtractor(cfg)
	classifier := processors.PickWindowClassifier(cfg)

	var stats *processors.NormStats
	if cfg.NormStatsPath != "" {
		stats, err = processors.LoadNormStats(cfg.NormStatsPath)
		if err != nil {
			fmt.Printf("Warning: failed to load norm stats (%v), classifying raw features\n", err)
			stats = nil
		} else {
			log.Printf("Loaded normalization stats from %s", cfg.NormStatsPath)
		}
	}

	speech := processors.NewSpeechChunkProcessor(registry, decoder, transcriber, cfg.DecodeTimeout(), cfg.TranscribeTimeout())
	video := processors.NewVideoFrameProcessor(registry, extractor, classifier, stats, cfg.ConfidenceThreshold, cfg.ClassifyTimeout())
	coach := processors.NewCoach(cfg)
	generator := processors.NewQuestionGenerator(cfg)

	archive := storage.InitSessionArchive(cfg)
	log.Printf("Session archive initialized: %s", cfg.Store)
	index := storage.InitAnswerIndex(cfg)
	log.Printf("Answer index initialized: %s", cfg.Index)

	interviewHandlers := server.NewInterviewHandlers(registry, archive)
	analysisHandlers := server.NewAnalysisHandlers(registry, speech, video, coach, archive, index)
	questionHandlers := server.NewQuestionHandlers(registry, generator)
	searchHandlers := server.NewSearchHandlers(index)
	monitoringHandlers := server.NewMonitoringHandlers(registry, transcriber, classifier, archive, index)

	http.HandleFunc("/api/interview/create", interviewHandlers.CreateSessionHandler)
	http.HandleFunc("/api/interview/get", interviewHandlers.GetSessionHandler)
	http.HandleFunc("/api/interview/start", interviewHandlers.StartSessionHandler)
	http.HandleFunc("/api/interview/complete", interviewHandlers.CompleteSessionHandler)
	http.HandleFunc("/api/interview/delete", interviewHandlers.DeleteSessionHandler)
	http.HandleFunc("/api/interview/list", interviewHandlers.ListSessionsHandler)

	http.HandleFunc("/api/analysis/speech", analysisHandlers.SpeechChunkHandler)
	http.HandleFunc("/api/analysis/video-frame", analysisHandlers.VideoFrameHandler)
	http.HandleFunc("/api/analysis/summary", analysisHandlers.SummaryHandler)
	http.HandleFunc("/api/analysis/report", analysisHandlers.ReportHandler)

	http.HandleFunc("/api/questions/generate", questionHandlers.GenerateQuestionHandler)
	http.HandleFunc("/api/questions/types", questionHandlers.QuestionTypesHandler)

	http.HandleFunc("/api/search/answers", searchHandlers.SearchAnswersHandler)

	http.HandleFunc("/api/health", monitoringHandlers.HealthCheckHandler)
	http.HandleFunc("/api/stats", monitoringHandlers.StatsHandler)

	addr := ":" + cfg.Port
	log.Printf("Server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
