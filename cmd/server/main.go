package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/socialqueue/socialqueue/configs"
	"github.com/socialqueue/socialqueue/internal/api/handlers"
	"github.com/socialqueue/socialqueue/internal/publisher"
	"github.com/socialqueue/socialqueue/internal/repository"
	"github.com/socialqueue/socialqueue/internal/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	postRepo := repository.NewPostRepository(db)
	jobRepo := repository.NewJobRepository(db)
	store := repository.NewStore(db, postRepo, jobRepo)
	if err := store.Init(context.Background()); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()
	inspector := asynq.NewInspector(redisConn)
	defer inspector.Close()

	dispatcher := publisher.NewPlatformDispatcher(*cfg)
	broker := scheduler.NewAsynqBroker(client, inspector)
	sched := scheduler.New(store, dispatcher, broker)

	if err := sched.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	post := handlers.NewPostHandler(sched, postRepo)
	api := app.Group("/api")
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/scheduled", post.ListScheduled)
	api.Post("/posts/:id/schedule", post.SchedulePost)
	api.Post("/posts/:id/reschedule", post.ReschedulePost)
	api.Post("/posts/:id/cancel", post.CancelPost)
	api.Post("/posts/:id/publish", post.PublishPost)
	api.Put("/posts/:id/status", post.UpdateStatus)
	api.Get("/posts/:id/stats", post.PostStats)
	api.Delete("/posts/:id/remote", post.DeleteRemotePost)

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.WorkerCount,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(scheduler.TaskTypePublishPost, sched.HandlePublishTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, sched, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, sched *scheduler.Scheduler, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	sched.Shutdown()
	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
