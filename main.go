package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusQuestAPI/handlers"
	"campusQuestAPI/internal/anticheat"
	"campusQuestAPI/internal/notification"
	"campusQuestAPI/middleware"
	"campusQuestAPI/services"
	"campusQuestAPI/utils"
)

var (
	dbPool    *pgxpool.Pool
	jwtSecret []byte

	ledgerService       *services.LedgerService
	notificationService *services.NotificationService
	rewardService       *services.RewardService
	streakService       *services.StreakService
	questService        *services.QuestService
	taskService         *services.TaskService
	duelService         *services.DuelService
	challengeService    *services.ChallengeService
	storeService        *services.StoreService
	parliamentService   *services.ParliamentService
	userService         *services.UserService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}
	jwtSecret = []byte(secret)

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to database")

	notificationService = services.NewNotificationService(dbPool)

	if telegramService, err := notification.NewTelegramService(); err != nil {
		notificationService.SetPushProvider(&services.MockPushProvider{})
		log.Printf("Warning: Could not initialize Telegram: %v, pushes go to the log", err)
	} else {
		notificationService.SetPushProvider(telegramService)
		log.Println("Telegram push provider initialized")
	}

	var verifier anticheat.Verifier
	if httpVerifier, err := anticheat.NewHTTPVerifier(); err != nil {
		verifier = anticheat.AllowAll{}
		log.Printf("Warning: Could not initialize anti-cheat: %v, photo checks are disabled", err)
	} else {
		verifier = httpVerifier
		log.Println("Anti-cheat verifier initialized")
	}

	ledgerService = services.NewLedgerService(dbPool)
	rewardService = services.NewRewardService(dbPool, ledgerService, notificationService, verifier)
	streakService = services.NewStreakService(dbPool)
	questService = services.NewQuestService(dbPool, rewardService, streakService, notificationService)
	taskService = services.NewTaskService(dbPool, notificationService)
	duelService = services.NewDuelService(dbPool, ledgerService, rewardService, notificationService)
	challengeService = services.NewChallengeService(dbPool, rewardService, notificationService)
	storeService = services.NewStoreService(dbPool, ledgerService)
	parliamentService = services.NewParliamentService(dbPool, ledgerService)
	userService = services.NewUserService(dbPool, ledgerService)

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		notificationService.Stop()
		dbPool.Close()
	}()

	userHandler := handlers.NewUserHandler(userService, ledgerService)
	questHandler := handlers.NewQuestHandler(questService)
	taskHandler := handlers.NewTaskHandler(taskService, rewardService)
	duelHandler := handlers.NewDuelHandler(duelService)
	challengeHandler := handlers.NewChallengeHandler(challengeService)
	streakHandler := handlers.NewStreakHandler(streakService)
	storeHandler := handlers.NewStoreHandler(storeService)
	reportHandler := handlers.NewReportHandler(rewardService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	parliamentHandler := handlers.NewParliamentHandler(parliamentService)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()
	go settleExpiredDuels()
	go watchStreaksAtRisk()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "campusQuest-api"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(jwtSecret))

	protected.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	protected.HandleFunc("/user/balance", userHandler.GetBalance).Methods("GET")
	protected.HandleFunc("/user/ledger", userHandler.GetLedgerHistory).Methods("GET")
	protected.HandleFunc("/user/leaderboard", userHandler.GetSchoolLeaderboard).Methods("GET")
	protected.HandleFunc("/user/ranks", userHandler.GetRankTable).Methods("GET")

	protected.HandleFunc("/quests/{period}", questHandler.GetQuests).Methods("GET")
	protected.HandleFunc("/quests/{questId}/complete", questHandler.CompleteQuest).Methods("POST")

	protected.HandleFunc("/tasks", taskHandler.ListTasks).Methods("GET")
	protected.HandleFunc("/tasks/mine", taskHandler.ListMyInstances).Methods("GET")
	protected.HandleFunc("/tasks/claim", taskHandler.ClaimTask).Methods("POST")
	protected.HandleFunc("/tasks/instances/{instanceId}/submit", taskHandler.SubmitForReview).Methods("POST")
	protected.HandleFunc("/tasks/instances/{instanceId}/reject", taskHandler.RejectTask).Methods("POST")
	protected.HandleFunc("/tasks/instances/{instanceId}/position", taskHandler.SetTopPosition).Methods("PUT")
	protected.HandleFunc("/tasks/approve", taskHandler.ApproveTask).Methods("POST")
	protected.HandleFunc("/tasks/award-top", taskHandler.AwardTop).Methods("POST")

	protected.HandleFunc("/reports", reportHandler.SubmitReport).Methods("POST")

	protected.HandleFunc("/duels", duelHandler.ListDuels).Methods("GET")
	protected.HandleFunc("/duels", duelHandler.CreateDuel).Methods("POST")
	protected.HandleFunc("/duels/{duelId}", duelHandler.GetDuel).Methods("GET")
	protected.HandleFunc("/duels/{duelId}/accept", duelHandler.AcceptDuel).Methods("POST")
	protected.HandleFunc("/duels/{duelId}/cancel", duelHandler.CancelDuel).Methods("POST")
	protected.HandleFunc("/duels/{duelId}/resolve", duelHandler.ResolveDuel).Methods("POST")

	protected.HandleFunc("/challenges", challengeHandler.ListChallenges).Methods("GET")
	protected.HandleFunc("/challenges", challengeHandler.CreateChallenge).Methods("POST")
	protected.HandleFunc("/challenges/join", challengeHandler.JoinChallenge).Methods("POST")
	protected.HandleFunc("/challenges/{challengeId}", challengeHandler.GetProgress).Methods("GET")
	protected.HandleFunc("/challenges/{challengeId}/contribute", challengeHandler.Contribute).Methods("POST")
	protected.HandleFunc("/challenges/{challengeId}/invite", challengeHandler.GenerateInvite).Methods("GET")

	protected.HandleFunc("/streak", streakHandler.GetStreak).Methods("GET")
	protected.HandleFunc("/streak/freeze", streakHandler.UseFreeze).Methods("POST")

	protected.HandleFunc("/store", storeHandler.GetStore).Methods("GET")
	protected.HandleFunc("/store/purchase/item", storeHandler.PurchaseStoreItem).Methods("POST")
	protected.HandleFunc("/store/inventory", storeHandler.GetInventory).Methods("GET")

	protected.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", notificationHandler.GetUnreadCount).Methods("GET")
	protected.HandleFunc("/notifications/{notificationId}/read", notificationHandler.MarkAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/read-all", notificationHandler.MarkAllAsRead).Methods("PUT")
	protected.HandleFunc("/notifications/register-chat", notificationHandler.RegisterChat).Methods("POST")

	protected.HandleFunc("/parliament", parliamentHandler.ListMemberships).Methods("GET")
	protected.HandleFunc("/parliament/me", parliamentHandler.GetMyMembership).Methods("GET")
	protected.HandleFunc("/parliament/leaderboard", userHandler.GetParliamentLeaderboard).Methods("GET")
	protected.HandleFunc("/parliament/memberships", parliamentHandler.CreateMembership).Methods("POST")
	protected.HandleFunc("/parliament/memberships/{membershipId}", parliamentHandler.DeactivateMembership).Methods("DELETE")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorillaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// watchStreaksAtRisk nudges users whose streak window is about to close.
func watchStreaksAtRisk() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		utils.NotifyStreaksAtRisk(dbPool, notificationService)
	}
}

// settleExpiredDuels periodically refunds duels that timed out with no winner.
func settleExpiredDuels() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		settled, err := duelService.SettleExpired(ctx)
		cancel()
		if err != nil {
			log.Printf("settleExpiredDuels: %v", err)
			continue
		}
		if settled > 0 {
			log.Printf("settleExpiredDuels: settled %d duels as draws", settled)
		}
	}
}
