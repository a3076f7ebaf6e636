package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"

	"LIBRA-backend/internal/lending/books"
	"LIBRA-backend/internal/lending/borrows"
	"LIBRA-backend/internal/lending/fines"
	"LIBRA-backend/internal/lending/reservations"
	"LIBRA-backend/internal/lending/sweeper"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/notify"
)

func main() {
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}
	log.Printf("[INFO] mode:%s", cfg.Mode)

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	secret := []byte(cfg.Auth.JWTSecret)
	runner := db.NewRunner(conn)

	notifySvc := notify.NewService(conn)
	authSvc := auth.NewService(conn, secret)
	bookSvc := books.NewService(conn)
	fineSvc := fines.NewService(conn)
	reservationSvc := reservations.NewService(runner, cfg.Lending, notifySvc)
	borrowSvc := borrows.NewService(runner, cfg.Lending, fineSvc, reservationSvc, notifySvc)

	sw := sweeper.New(borrowSvc, reservationSvc,
		time.Duration(cfg.Lending.SweepIntervalMinutes)*time.Minute)
	sw.Start()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api/v1")
	auth.RegisterRoutes(api, authSvc)

	authed := r.Group("/api/v1")
	authed.Use(auth.RequireAuth(secret))
	books.RegisterRoutes(authed, bookSvc)
	borrows.RegisterRoutes(authed, borrowSvc)
	reservations.RegisterRoutes(authed, reservationSvc)
	fines.RegisterRoutes(authed, fineSvc)
	notify.RegisterRoutes(authed, notifySvc)

	admin := r.Group("/api/v1/admin")
	admin.Use(auth.RequireAuth(secret), auth.RequireRole(auth.RoleAdmin))
	auth.RegisterAdminRoutes(admin, authSvc)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")

	sw.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[ERROR] shutdown: %v", err)
	}
	log.Println("[INFO] bye")
}
