package kernel

import (
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"git.sr.ht/~aondrejcak/payrecon/models"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel"
)

func (art *AppRuntime) PrepareDatabase() error {
	db, err := OpenDatabase(mysql.Open(art.DatabaseDSN), art.DeploymentEnvironment == "development")
	if err != nil {
		return err
	}
	art.DatabaseClient = db
	return nil
}

// OpenDatabase opens dialector with tracing enabled and migrates the ledger
// tables.
func OpenDatabase(dialector gorm.Dialector, verbose bool) (*gorm.DB, error) {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}

	dbLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      level,
			Colorful:      verbose,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, err
	}

	if err = db.Use(otelgorm.NewPlugin(
		otelgorm.WithAttributes(),
		otelgorm.WithTracerProvider(otel.GetTracerProvider()),
	)); err != nil {
		return nil, err
	}

	if err = db.AutoMigrate(&models.Payment{}, &models.MedicalRecord{}, &models.Appointment{}); err != nil {
		return nil, err
	}

	return db, nil
}
