package storage

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"deye-monitor/internal/inverter"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&InverterReading{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) SaveReading(snap *inverter.Snapshot) error {
	reading := &InverterReading{
		Timestamp:       snap.Timestamp,
		PV1Power:        snap.PV1Power,
		PV2Power:        snap.PV2Power,
		PVTotalPower:    snap.PVTotalPower,
		BatteryVoltage:  snap.BatteryVoltage,
		BatteryCurrent:  snap.BatteryCurrent,
		BatteryPower:    snap.BatteryPower,
		BatterySOC:      snap.BatterySOC,
		BatteryStatus:   snap.BatteryStatus,
		GridVoltage:     snap.GridVoltage,
		GridPower:       snap.GridPower,
		GridStatus:      snap.GridStatus,
		LoadPower:       snap.LoadPower,
		LoadL1:          snap.LoadL1,
		LoadL2:          snap.LoadL2,
		LoadL3:          snap.LoadL3,
		GeneratorPower:  snap.GeneratorPower,
		DCTemp:          snap.DCTemp,
		HeatsinkTemp:    snap.HeatsinkTemp,
		DailyPV:         snap.DailyPV,
		DailyGridImport: snap.DailyGridImport,
		DailyGridExport: snap.DailyGridExport,
		DailyLoad:       snap.DailyLoad,
	}

	return d.db.Create(reading).Error
}

func (d *Database) GetLatestReading() (*InverterReading, error) {
	var reading InverterReading
	result := d.db.Order("timestamp desc").First(&reading)
	if result.Error != nil {
		return nil, result.Error
	}
	return &reading, nil
}

func (d *Database) GetReadingsByRange(from, to time.Time) ([]InverterReading, error) {
	var readings []InverterReading
	result := d.db.Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp desc").
		Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetReadingsWithLimit(limit int) ([]InverterReading, error) {
	var readings []InverterReading
	result := d.db.Order("timestamp desc").Limit(limit).Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetDailyStats(date time.Time) (*DailyStats, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	var stats DailyStats
	stats.Date = startOfDay

	// Max load
	var reading InverterReading
	result := d.db.Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Order("load_power desc").
		First(&reading)
	if result.Error == nil {
		stats.MaxLoad = reading.LoadPower
	}

	// Latest device daily counters win; they are cumulative over the day.
	result = d.db.Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Order("timestamp desc").
		First(&reading)
	if result.Error == nil {
		stats.PVEnergy = reading.DailyPV
		stats.GridImport = reading.DailyGridImport
	}

	// Average heatsink temperature
	var avgTemp float64
	d.db.Model(&InverterReading{}).
		Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Select("AVG(heatsink_temp)").
		Scan(&avgTemp)
	stats.AvgTemperature = avgTemp

	// Readings count
	d.db.Model(&InverterReading{}).
		Where("timestamp BETWEEN ? AND ?", startOfDay, endOfDay).
		Count(&stats.ReadingsCount)

	return &stats, nil
}

func (d *Database) CleanOldReadings(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return d.db.Where("timestamp < ?", cutoff).Delete(&InverterReading{}).Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
