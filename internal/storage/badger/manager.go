package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db           *BadgerDB
	announcement interfaces.AnnouncementStorage
	report       interfaces.ReportStorage
	dashboard    interfaces.DashboardStorage
	company      interfaces.CompanyStorage
	metadata     interfaces.MetadataStorage
	logger       arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.StorageConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		announcement: NewAnnouncementStorage(db, logger),
		report:       NewReportStorage(db, logger),
		dashboard:    NewDashboardStorage(db, logger),
		company:      NewCompanyStorage(db, logger),
		metadata:     NewMetadataStorage(db, logger),
		logger:       logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// AnnouncementStorage returns the AllAnnouncements collection
func (m *Manager) AnnouncementStorage() interfaces.AnnouncementStorage {
	return m.announcement
}

// ReportStorage returns the AllReports collection
func (m *Manager) ReportStorage() interfaces.ReportStorage {
	return m.report
}

// DashboardStorage returns the Dashboard collection
func (m *Manager) DashboardStorage() interfaces.DashboardStorage {
	return m.dashboard
}

// CompanyStorage returns the CompanyMaster collection
func (m *Manager) CompanyStorage() interfaces.CompanyStorage {
	return m.company
}

// MetadataStorage returns the MetaDataLastUpdates collection
func (m *Manager) MetadataStorage() interfaces.MetadataStorage {
	return m.metadata
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
