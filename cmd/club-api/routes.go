package main

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/vzs-club-api/internal/app"
	"github.com/noah-isme/vzs-club-api/internal/handler"
	"github.com/noah-isme/vzs-club-api/internal/middleware"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	"github.com/noah-isme/vzs-club-api/pkg/cache"
	"github.com/noah-isme/vzs-club-api/pkg/config"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/vzs-club-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/vzs-club-api/pkg/middleware/requestid"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

func newRouter(a *app.App) *gin.Engine {
	cfg := a.Config
	svc := a.Services

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svc.Metrics, "/metrics"))

	checks := map[string]handler.Pinger{"database": a.DB}
	if a.Redis != nil {
		client := a.Redis
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return cache.Ping(ctx, client) })
	}
	metricsHandler := handler.NewMetricsHandler(svc.Metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registry := permissions.Default()
	guard := func(action string) gin.HandlerFunc {
		return middleware.Authorize(registry, svc.Entities, action)
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.Audit(a.Logger))

	authHandler := handler.NewAuthHandler(svc.Auth)
	public := api.Group("/auth")
	public.POST("/login", authHandler.Login)
	public.POST("/oidc", authHandler.LoginOIDC)
	public.POST("/refresh", authHandler.Refresh)
	public.POST("/forgot-password", authHandler.ForgotPassword)
	public.POST("/reset-password", authHandler.ResetPassword)

	secured := api.Group("")
	secured.Use(middleware.Auth(svc.Auth))

	secured.POST("/auth/logout", authHandler.Logout)
	secured.POST("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/auth/me", authHandler.Me)
	secured.POST("/auth/switch-person", authHandler.SwitchPerson)
	secured.POST("/auth/token", authHandler.IssueToken)
	secured.DELETE("/auth/token", authHandler.RevokeToken)

	users := handler.NewUserHandler(svc.Users)
	secured.GET("/users", guard(permissions.ActionUserList), users.List)
	secured.GET("/users/:id", guard(permissions.ActionUserList), users.Get)
	secured.PUT("/users/:id/permissions", guard(permissions.ActionUserPermissions), users.SetPermissions)

	persons := handler.NewPersonHandler(svc.Persons)
	features := handler.NewFeatureHandler(svc.Features)
	enrollments := handler.NewEnrollmentHandler(svc.Enrollments)
	occurrences := handler.NewOccurrenceHandler(svc.Occurrences)
	transactions := handler.NewTransactionHandler(svc.Transactions)
	exports := handler.NewExportHandler(svc.Exports)

	secured.GET("/persons", guard(permissions.ActionPersonList), persons.List)
	secured.POST("/persons", guard(permissions.ActionPersonCreate), persons.Create)
	secured.GET("/persons/managed", persons.Managed)
	secured.GET("/persons/export", guard(permissions.ActionPersonExport), exports.Persons)
	secured.GET("/persons/:id", guard(permissions.ActionPersonView), persons.Get)
	secured.PUT("/persons/:id", guard(permissions.ActionPersonUpdate), persons.Update)
	secured.DELETE("/persons/:id", guard(permissions.ActionPersonDelete), persons.Delete)
	secured.GET("/persons/:id/hourly-rates", guard(permissions.ActionPersonRates), persons.HourlyRates)
	secured.PUT("/persons/:id/hourly-rates", guard(permissions.ActionPersonRates), persons.SetHourlyRate)
	secured.POST("/persons/:id/managed", guard(permissions.ActionPersonManaged), persons.AddManaged)
	secured.DELETE("/persons/:id/managed/:managedId", guard(permissions.ActionPersonManaged), persons.RemoveManaged)
	secured.GET("/persons/:id/features", guard(permissions.ActionPersonView), features.Assignments)
	secured.POST("/persons/:id/features", guard(permissions.ActionFeatureAssign), features.Assign)
	secured.GET("/persons/:id/enrollments", guard(permissions.ActionPersonView), enrollments.ForPerson)
	secured.GET("/persons/:id/occurrences", guard(permissions.ActionPersonView), occurrences.ForPerson)
	secured.GET("/persons/:id/ledger", guard(permissions.ActionLedgerView), transactions.Summary)
	secured.GET("/persons/:id/statement", guard(permissions.ActionLedgerView), exports.Statement)

	secured.GET("/features", guard(permissions.ActionFeatureView), features.List)
	secured.POST("/features", guard(permissions.ActionFeatureCreate), features.Create)
	secured.GET("/features/:id", guard(permissions.ActionFeatureView), features.Get)
	secured.PUT("/features/:id", guard(permissions.ActionFeatureManage), features.Update)
	secured.DELETE("/features/:id", guard(permissions.ActionFeatureManage), features.Delete)
	secured.GET("/features/:id/matrix", guard(permissions.ActionFeatureManage), features.Matrix)
	secured.GET("/feature-assignments/:assignmentId", guard(permissions.ActionAssignmentManage), features.GetAssignment)
	secured.PUT("/feature-assignments/:assignmentId", guard(permissions.ActionAssignmentManage), features.UpdateAssignment)
	secured.POST("/feature-assignments/:assignmentId/return", guard(permissions.ActionAssignmentManage), features.ReturnEquipment)
	secured.DELETE("/feature-assignments/:assignmentId", guard(permissions.ActionAssignmentManage), features.DeleteAssignment)

	groups := handler.NewGroupHandler(svc.Groups)
	secured.GET("/groups", guard(permissions.ActionGroupView), groups.List)
	secured.POST("/groups", guard(permissions.ActionGroupCreate), groups.Create)
	secured.GET("/groups/:id", guard(permissions.ActionGroupView), groups.Get)
	secured.PUT("/groups/:id", guard(permissions.ActionGroupManage), groups.Update)
	secured.DELETE("/groups/:id", guard(permissions.ActionGroupManage), groups.Delete)
	secured.GET("/groups/:id/members", guard(permissions.ActionGroupView), groups.Members)
	secured.POST("/groups/:id/members", guard(permissions.ActionGroupManage), groups.AddMembers)
	secured.POST("/groups/:id/members/remove", guard(permissions.ActionGroupManage), groups.RemoveMembers)

	positions := handler.NewPositionHandler(svc.Positions)
	secured.GET("/positions", guard(permissions.ActionPositionView), positions.List)
	secured.POST("/positions", guard(permissions.ActionPositionCreate), positions.Create)
	secured.GET("/positions/:id", guard(permissions.ActionPositionView), positions.Get)
	secured.PUT("/positions/:id", guard(permissions.ActionPositionManage), positions.Update)
	secured.DELETE("/positions/:id", guard(permissions.ActionPositionManage), positions.Delete)

	events := handler.NewEventHandler(svc.Events)
	secured.GET("/events", events.List)
	secured.POST("/events", guard(permissions.ActionEventCreate), events.Create)
	secured.GET("/events/:id", guard(permissions.ActionEventView), events.Get)
	secured.PUT("/events/:id", guard(permissions.ActionEventManage), events.Update)
	secured.DELETE("/events/:id", guard(permissions.ActionEventManage), events.Delete)
	secured.GET("/events/:id/occurrences", guard(permissions.ActionEventView), events.Occurrences)
	secured.POST("/events/:id/positions", guard(permissions.ActionEventManage), events.AddPosition)
	secured.PUT("/events/:id/positions", guard(permissions.ActionEventManage), events.UpdatePosition)
	secured.DELETE("/events/:id/positions/:positionId", guard(permissions.ActionEventManage), events.RemovePosition)
	secured.GET("/events/:id/coaches", guard(permissions.ActionEventView), events.Coaches)
	secured.POST("/events/:id/coaches", guard(permissions.ActionEventManage), events.AssignCoach)
	secured.PUT("/events/:id/coaches/:coachId", guard(permissions.ActionEventManage), events.MoveCoach)
	secured.DELETE("/events/:id/coaches/:coachId", guard(permissions.ActionEventManage), events.RemoveCoach)
	secured.PUT("/events/:id/main-coach", guard(permissions.ActionEventManage), events.SetMainCoach)

	secured.GET("/events/:id/enrollments", guard(permissions.ActionEnrollmentView), enrollments.List)
	secured.POST("/events/:id/enrollments", guard(permissions.ActionEventEnroll), enrollments.Enroll)
	secured.POST("/events/:id/enrollments/approve", guard(permissions.ActionEventManage), enrollments.BulkApprove)
	secured.GET("/events/:id/can-enroll", guard(permissions.ActionEventEnroll), enrollments.CanEnroll)
	secured.GET("/enrollments/:enrollmentId", guard(permissions.ActionEnrollmentOwn), enrollments.Get)
	secured.PUT("/enrollments/:enrollmentId", guard(permissions.ActionEnrollmentManage), enrollments.Update)
	secured.DELETE("/enrollments/:enrollmentId", guard(permissions.ActionEnrollmentOwn), enrollments.Delete)
	secured.PUT("/enrollments/:enrollmentId/state", guard(permissions.ActionEnrollmentManage), enrollments.Transition)
	secured.GET("/enrollments/:enrollmentId/fees", guard(permissions.ActionEnrollmentOwn), enrollments.Fees)
	secured.POST("/enrollments/:enrollmentId/fees", guard(permissions.ActionEnrollmentManage), enrollments.AddTrainingFee)

	secured.GET("/occurrences/:occurrenceId", guard(permissions.ActionOccurrenceView), occurrences.Get)
	secured.PUT("/occurrences/:occurrenceId", guard(permissions.ActionOccurrenceManage), occurrences.Update)
	secured.GET("/occurrences/:occurrenceId/roster", guard(permissions.ActionOccurrenceView), occurrences.Roster)
	secured.POST("/occurrences/:occurrenceId/close", guard(permissions.ActionOccurrenceClose), occurrences.Close)
	secured.POST("/occurrences/:occurrenceId/reopen", guard(permissions.ActionOccurrenceManage), occurrences.Reopen)
	secured.POST("/occurrences/:occurrenceId/participants", guard(permissions.ActionOccurrenceSelf), occurrences.AddParticipant)
	secured.DELETE("/occurrences/:occurrenceId/participants/:personId", guard(permissions.ActionOccurrenceSelf), occurrences.RemoveParticipant)
	secured.POST("/occurrences/:occurrenceId/participants/:personId/excuse", guard(permissions.ActionOccurrenceExcuse), occurrences.ExcuseParticipant)
	secured.DELETE("/occurrences/:occurrenceId/participants/:personId/excuse", guard(permissions.ActionOccurrenceManage), occurrences.CancelParticipantExcuse)
	secured.POST("/occurrences/:occurrenceId/coaches", guard(permissions.ActionOccurrenceSelf), occurrences.AddCoach)
	secured.DELETE("/occurrences/:occurrenceId/coaches/:personId", guard(permissions.ActionOccurrenceSelf), occurrences.RemoveCoach)
	secured.POST("/occurrences/:occurrenceId/coaches/:personId/excuse", guard(permissions.ActionOccurrenceExcuse), occurrences.ExcuseCoach)
	secured.DELETE("/occurrences/:occurrenceId/coaches/:personId/excuse", guard(permissions.ActionOccurrenceManage), occurrences.CancelCoachExcuse)

	secured.GET("/transactions", transactions.List)
	secured.GET("/transactions/export", exports.Transactions)
	secured.POST("/transactions", guard(permissions.ActionTransactionManage), transactions.Create)
	secured.GET("/transactions/:id", guard(permissions.ActionTransactionView), transactions.Get)
	secured.PUT("/transactions/:id", guard(permissions.ActionTransactionManage), transactions.Update)
	secured.DELETE("/transactions/:id", guard(permissions.ActionTransactionManage), transactions.Delete)
	secured.GET("/transactions/:id/payment", guard(permissions.ActionTransactionView), transactions.Payment)

	jobs := handler.NewJobHandler(svc.Jobs)
	secured.GET("/jobs", guard(permissions.ActionJobRun), jobs.List)
	secured.POST("/jobs/:name", guard(permissions.ActionJobRun), jobs.Run)

	secured.GET("/metrics/summary", guard(permissions.ActionMetricsView), metricsHandler.Snapshot)

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
	})

	return r
}
