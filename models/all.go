package models

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Admin{},
		&Individual{},
		&Guardian{},
		&AccessEvent{},
		&PointTransaction{},
		&PointSettings{},
		&RoleAccessTime{},
		&BonusSetting{},
		&PointsBackup{},
		&PointsBackupItem{},
		&KioskDevice{},
	}
}
