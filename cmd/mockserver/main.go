package main

import (
	"flag"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sleepstars/deepbridge/internal/logger"
	"github.com/sleepstars/deepbridge/internal/mocks"
)

func main() {
	port := flag.String("port", "8001", "Port to run the server on")
	delay := flag.Duration("delay", 50*time.Millisecond, "Pause between streamed chunks")
	flag.Parse()

	logger.InitLogger(logger.INFO, "mockserver")
	log := logger.GetLogger()

	gin.SetMode(gin.ReleaseMode)
	r := mocks.NewUpstreamServer(*delay)

	log.Info("Mock upstream listening on :%s%s", *port, mocks.UpstreamPath)
	if err := r.Run(":" + *port); err != nil {
		log.Fatal("Mock upstream stopped: %v", err)
	}
}
