package main

import (
	"github.com/julienschmidt/httprouter"

	courseshandler "rally/internal/courses/handler"
	coursesrepo "rally/internal/courses/repository"
	coursesservice "rally/internal/courses/service"
	coursesvalidator "rally/internal/courses/validator"
	evalhandler "rally/internal/evaluations/handler"
	evalrepo "rally/internal/evaluations/repository"
	evalservice "rally/internal/evaluations/service"
	ledgerhandler "rally/internal/ledger/handler"
	ledgerrepo "rally/internal/ledger/repository"
	ledgerservice "rally/internal/ledger/service"
	"rally/internal/notify"
	notifyhandler "rally/internal/notify/handler"
	notifyrepo "rally/internal/notify/repository"
	quotarepo "rally/internal/quota/repository"
	quotaservice "rally/internal/quota/service"
	relationshandler "rally/internal/relations/handler"
	relationsrepo "rally/internal/relations/repository"
	relationsservice "rally/internal/relations/service"
	tournamentshandler "rally/internal/tournaments/handler"
	tournamentsrepo "rally/internal/tournaments/repository"
	tournamentsservice "rally/internal/tournaments/service"
	tournamentsvalidator "rally/internal/tournaments/validator"
	"rally/pkg/app"
	"rally/pkg/clock"
	"rally/pkg/config"
	"rally/pkg/kafka"
)

const ServiceName = "coordinator"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting coordinator service")

	sink, producer := initSink(cfg)
	if producer != nil {
		defer producer.Close()
	}

	wiring := initServices(cfg, sink)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, wiring)
	serverApp.AddWorker("completion-sweeper", wiring.completionSweeper.Run)
	serverApp.AddWorker("registration-sweeper", wiring.registrationSweeper.Run)
	serverApp.AddWorker("compensator", wiring.compensator.Run)
	serverApp.Run()
}

func initSink(cfg *config.Config) (notify.Sink, *kafka.Producer) {
	if len(cfg.KafkaBrokers) == 0 {
		cfg.Log.Warn("No Kafka brokers configured, lifecycle events will only be logged")
		return notify.NewNoopSink(cfg.Log), nil
	}

	producer, err := kafka.NewProducer(kafka.NewConfig(cfg.KafkaBrokers), cfg.KafkaTopic, cfg.KafkaDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	return notify.NewKafkaSink(producer, ServiceName), producer
}

// wiring holds the fully constructed handler set plus the background
// workers so main can register both on the application.
type wiring struct {
	courses       *courseshandler.CourseHandler
	parties       *courseshandler.PartyHandler
	relations     *relationshandler.RelationHandler
	tournaments   *tournamentshandler.TournamentHandler
	evaluations   *evalhandler.EvaluationHandler
	ledger        *ledgerhandler.LedgerHandler
	notifications *notifyhandler.NotificationHandler

	completionSweeper   *coursesservice.CompletionSweeper
	registrationSweeper *tournamentsservice.RegistrationSweeper
	compensator         ledgerservice.Compensator
}

func (w *wiring) RegisterRoutes(router *httprouter.Router) {
	w.courses.RegisterRoutes(router)
	w.parties.RegisterRoutes(router)
	w.relations.RegisterRoutes(router)
	w.tournaments.RegisterRoutes(router)
	w.evaluations.RegisterRoutes(router)
	w.ledger.RegisterRoutes(router)
	w.notifications.RegisterRoutes(router)
}

func initServices(cfg *config.Config, sink notify.Sink) *wiring {
	clk := clock.Real()

	courseRepo := coursesrepo.NewMongoCourseRepository(cfg)
	slotIndex := coursesrepo.NewMongoSlotIndex(cfg)
	slotLocks := coursesrepo.NewMongoSlotLockRepository(cfg)
	coachRepo := coursesrepo.NewMongoCoachRepository(cfg)
	studentRepo := coursesrepo.NewMongoStudentRepository(cfg)
	tableRepo := coursesrepo.NewMongoTableRepository(cfg)

	relationRepo := relationsrepo.NewMongoRelationRepository(cfg)
	relationLocks := relationsrepo.NewMongoRelationLockRepository(cfg)

	counterRepo := quotarepo.NewMongoCounterRepository(cfg)
	policy := quotaservice.NewCancellationPolicy(counterRepo, cfg)

	accountRepo := ledgerrepo.NewMongoAccountRepository(cfg)
	txnRepo := ledgerrepo.NewMongoTransactionRepository(cfg)
	compensationRepo := ledgerrepo.NewMongoCompensationRepository(cfg)
	ledger := ledgerservice.NewLedgerService(accountRepo, txnRepo, clk, cfg)
	chargeGuard := coursesservice.NewCourseChargeGuard(courseRepo)
	compensator := ledgerservice.NewCompensator(compensationRepo, ledger, sink, chargeGuard, clk, cfg)

	courseService := coursesservice.NewCourseService(coursesservice.Deps{
		Courses:   courseRepo,
		Slots:     slotIndex,
		Locks:     slotLocks,
		Coaches:   coachRepo,
		Students:  studentRepo,
		Tables:    tableRepo,
		Relations: relationRepo,
		Policy:    policy,
		Ledger:    ledger,
		Comp:      compensator,
		Sink:      sink,
		Validator: coursesvalidator.NewCourseValidator(cfg.Log),
		Clock:     clk,
		Config:    cfg,
	})
	partyService := coursesservice.NewPartyService(coachRepo, studentRepo, tableRepo, clk, cfg)

	relationService := relationsservice.NewRelationService(
		relationRepo,
		relationLocks,
		coachRepo,
		studentRepo,
		sink,
		clk,
		cfg,
	)

	tournamentService := tournamentsservice.NewTournamentService(
		tournamentsrepo.NewMongoTournamentRepository(cfg),
		tournamentsrepo.NewMongoEnrollmentRepository(cfg),
		tournamentsrepo.NewMongoMatchRepository(cfg),
		sink,
		tournamentsvalidator.NewTournamentValidator(cfg.Log),
		clk,
		cfg,
	)

	evaluationService := evalservice.NewEvaluationService(
		evalrepo.NewMongoEvaluationRepository(cfg),
		courseRepo,
		clk,
		cfg,
	)

	notificationRepo := notifyrepo.NewMongoNotificationRepository(cfg)

	cfg.Log.Info("Coordinator services initialized", "database", cfg.MongoDatabaseName)

	return &wiring{
		courses:       courseshandler.NewCourseHandler(courseService, cfg.Log),
		parties:       courseshandler.NewPartyHandler(partyService, cfg.Log),
		relations:     relationshandler.NewRelationHandler(relationService, cfg.Log),
		tournaments:   tournamentshandler.NewTournamentHandler(tournamentService, cfg.Log),
		evaluations:   evalhandler.NewEvaluationHandler(evaluationService, cfg.Log),
		ledger:        ledgerhandler.NewLedgerHandler(ledger, cfg.Log),
		notifications: notifyhandler.NewNotificationHandler(notificationRepo, cfg.Log),

		completionSweeper:   coursesservice.NewCompletionSweeper(courseService, courseRepo, clk, cfg),
		registrationSweeper: tournamentsservice.NewRegistrationSweeper(tournamentService, cfg),
		compensator:         compensator,
	}
}
