package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/config"
	"github.com/zaqqye/simlab_backend/internal/controllers"
	"github.com/zaqqye/simlab_backend/internal/eventbus"
	"github.com/zaqqye/simlab_backend/internal/grading"
	"github.com/zaqqye/simlab_backend/internal/logger"
	"github.com/zaqqye/simlab_backend/internal/metrics"
	"github.com/zaqqye/simlab_backend/internal/middleware"
	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/scheduling"
	"github.com/zaqqye/simlab_backend/internal/store"
	"github.com/zaqqye/simlab_backend/internal/ws"
)

// Register wires the engines over db and mounts every route on r. Background
// workers stop when ctx is done.
func Register(ctx context.Context, r *gin.Engine, db *gorm.DB, cfg *config.Config) error {
	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		sink, err := metrics.NewPromSink(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		rec = sink
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	bus := eventbus.New()
	go func() {
		<-ctx.Done()
		bus.Close()
	}()
	hubs := ws.NewHubs(ctx, bus)

	st := store.NewGormStore(db, cfg.Scheduling.LockTimeout())
	sched := scheduling.NewScheduler(st,
		scheduling.NewLocalReserver(cfg.Scheduling.LockTimeout()),
		scheduling.WithPublisher(bus),
		scheduling.WithMetrics(rec),
		scheduling.WithLogger(logger.New("scheduling")),
	)
	gradingOpts := []grading.Option{
		grading.WithPublisher(bus),
		grading.WithMetrics(rec),
		grading.WithLogger(logger.New("grading")),
		grading.WithMaxGrade(cfg.Grading.MaxGrade),
		grading.WithDecimals(cfg.Grading.Decimals),
		grading.WithWorkers(cfg.Grading.Workers),
	}
	engine := grading.NewRubricEngine(st, gradingOpts...)
	aggregator := grading.NewAggregator(st, gradingOpts...)

	authCtrl := &controllers.AuthController{
		DB:            db,
		AccessSecret:  cfg.Auth.JWTSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL(),
		RefreshTTL:    cfg.Auth.RefreshTTL(),
	}
	adminCtrl := &controllers.AdminController{DB: db}
	roomCtrl := &controllers.RoomController{DB: db, Checker: sched.Checker()}
	courseCtrl := &controllers.CourseController{DB: db}
	classCtrl := &controllers.ClassController{DB: db}
	practiceCtrl := &controllers.PracticeController{DB: db}
	simCtrl := &controllers.SimulationController{Scheduler: sched}
	rubricCtrl := &controllers.RubricController{Engine: engine}
	gradeCtrl := &controllers.GradeController{Aggregator: aggregator}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/login", authCtrl.Login)
		auth.POST("/refresh", authCtrl.Refresh)
	}

	// Protected
	authMW := middleware.AuthMiddleware(st, middleware.AuthConfig{JWTSecret: cfg.Auth.JWTSecret})
	api := r.Group("/api/v1", authMW)
	{
		api.GET("/auth/me", authCtrl.Me)
		api.POST("/auth/logout", authCtrl.Logout)

		// Students read their own grades; the controller enforces ownership.
		api.GET("/classes/:id/grades/me", gradeCtrl.MyGrade)
		api.GET("/classes/:id/students/:user_id/grade", gradeCtrl.StudentGrade)

		admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.GET("/users", adminCtrl.ListUsers)
			admin.POST("/users", authCtrl.Register)
			admin.POST("/users/import", adminCtrl.ImportUsers)
			admin.GET("/users/:user_id", adminCtrl.GetUser)
			admin.PUT("/users/:user_id", adminCtrl.UpdateUser)
			admin.DELETE("/users/:user_id", adminCtrl.DeleteUser)

			admin.POST("/rooms", roomCtrl.CreateRoom)
			admin.PUT("/rooms/:id", roomCtrl.UpdateRoom)
			admin.DELETE("/rooms/:id", roomCtrl.DeleteRoom)
			admin.POST("/room-types", roomCtrl.CreateRoomType)

			admin.POST("/courses", courseCtrl.CreateCourse)
			admin.PUT("/courses/:id", courseCtrl.UpdateCourse)
			admin.DELETE("/courses/:id", courseCtrl.DeleteCourse)

			admin.POST("/classes", classCtrl.CreateClass)
			admin.PUT("/classes/:id", classCtrl.UpdateClass)
			admin.DELETE("/classes/:id", classCtrl.DeleteClass)
			admin.POST("/classes/:id/students", classCtrl.EnrollStudents)
			admin.DELETE("/classes/:id/students/:user_id", classCtrl.UnenrollStudent)
		}

		staff := api.Group("", middleware.RequireRoles(models.RoleInstructor))
		{
			staff.GET("/rooms", roomCtrl.ListRooms)
			staff.GET("/rooms/availability", roomCtrl.Availability)
			staff.GET("/rooms/:id", roomCtrl.GetRoom)
			staff.GET("/room-types", roomCtrl.ListRoomTypes)

			staff.GET("/courses", courseCtrl.ListCourses)
			staff.GET("/courses/:id", courseCtrl.GetCourse)
			staff.GET("/classes", classCtrl.ListClasses)
			staff.GET("/classes/:id", classCtrl.GetClass)
			staff.GET("/classes/:id/students", classCtrl.ListStudents)
			staff.GET("/classes/:id/grades", gradeCtrl.ClassGrades)
			staff.PUT("/classes/:id/weights", gradeCtrl.ConfigureWeights)

			staff.GET("/practices", practiceCtrl.ListPractices)
			staff.POST("/practices", practiceCtrl.CreatePractice)
			staff.GET("/practices/:id", practiceCtrl.GetPractice)
			staff.PUT("/practices/:id", practiceCtrl.UpdatePractice)
			staff.DELETE("/practices/:id", practiceCtrl.DeletePractice)
			staff.POST("/practices/:id/not-gradeable", gradeCtrl.MarkNotGradeable)
			staff.GET("/practices/:id/simulations", simCtrl.ListByPractice)

			staff.POST("/simulations", simCtrl.CreateSimulation)
			staff.GET("/simulations/:id", simCtrl.GetSimulation)
			staff.PUT("/simulations/:id", simCtrl.UpdateSimulation)
			staff.DELETE("/simulations/:id", simCtrl.DeleteSimulation)
			staff.PUT("/simulations/:id/users", simCtrl.AssignUsers)
			staff.POST("/simulations/:id/rubric", rubricCtrl.CreateRubric)
			staff.GET("/simulations/:id/rubric", rubricCtrl.RubricForSimulation)

			staff.GET("/rubric-templates", rubricCtrl.ListTemplates)
			staff.POST("/rubric-templates", rubricCtrl.CreateTemplate)
			staff.GET("/rubric-templates/:id", rubricCtrl.GetTemplate)
			staff.PUT("/rubric-templates/:id/criteria", rubricCtrl.UpdateTemplateCriteria)
			staff.POST("/rubric-templates/:id/clone", rubricCtrl.CloneTemplate)
			staff.POST("/rubric-templates/:id/archive", rubricCtrl.ArchiveTemplate)

			staff.GET("/rubrics/:id", rubricCtrl.GetRubric)
			staff.PUT("/rubrics/:id/criteria/:criteria_id", rubricCtrl.ScoreCriteria)
			staff.POST("/rubrics/:id/finalize", rubricCtrl.FinalizeRubric)
			staff.POST("/rubrics/:id/abandon", rubricCtrl.AbandonRubric)
		}
	}

	r.GET("/ws/events", authMW, ws.EventsHandler(hubs.Events))
	return nil
}
