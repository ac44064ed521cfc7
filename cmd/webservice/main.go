package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"aptlink/chain"
	"aptlink/keyless"
	"aptlink/logger"
	"aptlink/utils"
	"aptlink/web/controllers"
	"aptlink/web/db"
	"aptlink/web/middleware"
)

func init() {
	utils.LoadEnv()
	logger.Init(utils.Env("LOG_LEVEL", "info"))
	db.Connect()
	db.Sync()
}

func main() {
	controllers.Chain = chain.FromEnv()
	controllers.UseKeylessDeriver(keyless.NewDeriver())

	controllers.StartPaymentMonitor(10 * time.Minute)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "Cache-Control", "X-Requested-With"},
	}))

	globalLimiter := middleware.NewRateLimiter(30, time.Minute) // 30 requests/min/IP
	globalLimiter.StartCleanup(10 * time.Minute)
	limit := globalLimiter.Middleware()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	r.GET("/escrow/stats", limit, controllers.EscrowStats)
	r.GET("/escrow/:id", limit, controllers.GetEscrow)
	r.POST("/escrow/create", limit, controllers.CreateEscrow)
	r.POST("/escrow/release", limit, controllers.ReleaseEscrow)
	r.POST("/escrow/cancel", limit, controllers.CancelEscrow)

	r.POST("/payments/create", limit, controllers.CreatePayment)
	r.POST("/payments/claim", limit, controllers.ClaimPayment)
	r.POST("/payments/update", limit, controllers.UpdatePayment)
	r.POST("/payments/send-direct", limit, controllers.SendDirect)
	r.GET("/payments/:id", limit, controllers.GetPayment)
	r.GET("/payments/:id/qr", limit, controllers.PaymentQR)

	r.POST("/register-user", limit, controllers.RegisterUser)
	r.GET("/users/resolve", limit, controllers.ResolveEmail)

	r.Run(":" + utils.Env("GIN_PORT", "8080"))
}
