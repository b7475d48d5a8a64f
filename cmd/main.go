package main

import (
	"context"
	"net/http"
	_ "time/tzdata"

	"github.com/gorilla/mux"
	cron "github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/sendgrid/sendgrid-go"
	twilio "github.com/twilio/twilio-go"

	"github.com/NerdyNot/NerdyOps/internal/app"
	"github.com/NerdyNot/NerdyOps/internal/config"
	"github.com/NerdyNot/NerdyOps/internal/controllers"
	"github.com/NerdyNot/NerdyOps/internal/middleware"
	"github.com/NerdyNot/NerdyOps/internal/repositories"
	"github.com/NerdyNot/NerdyOps/internal/routes"
	"github.com/NerdyNot/NerdyOps/internal/services"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

func main() {
	utils.InitLogger(config.AppName)
	cfg := config.LoadConfig()
	defer cfg.Close()

	application, err := app.NewApp(cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize orchestrator:", err)
	}
	defer application.Close()

	if err := application.EnsureSchema(context.Background()); err != nil {
		utils.Logger.WithError(err).Fatal("Failed to ensure database schema")
	}

	agentRepo := repositories.NewAgentRepository(application.DB)
	taskRepo := repositories.NewTaskRepository(application.DB)

	scriptSvc := services.NewScriptService(cfg.OpenAIAPIKey)

	twClient := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	sgClient := sendgrid.NewSendClient(cfg.SendGridAPIKey)

	notifier := services.NewNotificationService(
		twClient,
		sgClient,
		cfg.LDFlag_TwilioFromPhone,
		cfg.LDFlag_SendgridFromEmail,
		cfg.OnCallPhone,
		cfg.OnCallEmail,
		cfg.OrganizationName,
		cfg.LDFlag_SendgridSandboxMode,
	)

	agentService := services.NewAgentService(cfg, agentRepo, notifier)
	taskService := services.NewTaskService(cfg, taskRepo, agentRepo, scriptSvc, notifier)

	if cfg.LDFlag_SeedDbWithTestData {
		if err := app.SeedTestData(context.Background(), agentRepo); err != nil {
			utils.Logger.WithError(err).Fatal("Failed to seed test data")
		}
	}

	healthController := controllers.NewHealthController(application)
	agentsController := controllers.NewAgentsController(agentService)
	tasksController := controllers.NewTasksController(taskService)
	runnerController := controllers.NewRunnerController(taskService)

	router := mux.NewRouter()

	// Public
	router.HandleFunc(routes.Health, healthController.HealthCheckHandler).Methods(http.MethodGet)

	// Agent-facing endpoints, guarded by the shared fleet key
	agentFacing := router.NewRoute().Subrouter()
	agentFacing.Use(middleware.AgentAuthMiddleware(cfg.AgentAPIKey))

	agentFacing.HandleFunc(routes.AgentsRegister, agentsController.RegisterHandler).Methods(http.MethodPost)
	agentFacing.HandleFunc(routes.AgentsHeartbeat, agentsController.HeartbeatHandler).Methods(http.MethodPost)
	agentFacing.HandleFunc(routes.RunnerNextTask, runnerController.NextTaskHandler).Methods(http.MethodGet)
	agentFacing.HandleFunc(routes.RunnerReport, runnerController.ReportResultHandler).Methods(http.MethodPost)

	// Operator endpoints
	secured := router.NewRoute().Subrouter()
	secured.Use(middleware.AuthMiddleware(cfg.RSAPublicKey, cfg.JWTIssuer))

	secured.HandleFunc(routes.AgentsBase, agentsController.ListAgentsHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.TasksSubmit, tasksController.SubmitHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.TasksPending, tasksController.ListPendingHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.TasksCompleted, tasksController.ListCompletedHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.TasksSummary, tasksController.SummaryHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.TasksForAgent, tasksController.ListForAgentHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.TasksGet, tasksController.GetTaskHandler).Methods(http.MethodGet)

	// Decisions and deletions additionally need the operator role
	gated := router.NewRoute().Subrouter()
	gated.Use(
		middleware.AuthMiddleware(cfg.RSAPublicKey, cfg.JWTIssuer),
		middleware.RequireOperator,
	)

	gated.HandleFunc(routes.TasksApprove, tasksController.ApproveHandler).Methods(http.MethodPost)
	gated.HandleFunc(routes.TasksReject, tasksController.RejectHandler).Methods(http.MethodPost)
	gated.HandleFunc(routes.TasksBatchApprove, tasksController.BatchApproveHandler).Methods(http.MethodPost)
	gated.HandleFunc(routes.TasksBatchReject, tasksController.BatchRejectHandler).Methods(http.MethodPost)
	gated.HandleFunc(routes.AgentsDelete, agentsController.DeleteAgentHandler).Methods(http.MethodDelete)

	c := cron.New()
	_, sweepErr := c.AddFunc("@every 1m", func() {
		if e := agentService.RunLivenessSweep(context.Background()); e != nil {
			utils.Logger.WithError(e).Error("Scheduled liveness sweep failed")
		}
	})
	if sweepErr != nil {
		utils.Logger.WithError(sweepErr).Fatal("Failed to schedule liveness sweep cron")
	}
	c.Start()

	allowedOrigins := []string{cfg.AppUrl}
	if !cfg.LDFlag_CORSHighSecurity {
		allowedOrigins = append(allowedOrigins, utils.CORSLowSecurityAllowedOriginLocalhost)
	}

	co := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Agent-Key"},
		AllowCredentials: true,
	})

	utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
	if err := http.ListenAndServe(":"+cfg.AppPort, co.Handler(router)); err != nil {
		utils.Logger.Fatal("orchestrator failed to start:", err)
	}
}
