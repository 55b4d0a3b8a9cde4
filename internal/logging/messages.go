package logging

// Stable message identifiers. The prefix names the severity the message is
// normally emitted with.
const (
	MsgRunStart             = "INFO_RUN_START"
	MsgRunFinished          = "INFO_RUN_FINISHED"
	MsgDepotNotFound        = "CRIT_DEPOT_NOT_FOUND"
	MsgNoItemsConfigured    = "CRIT_NO_ITEMS_CONFIGURED"
	MsgNoItemsAvailable     = "CRIT_NO_ITEMS_AVAILABLE"
	MsgInvalidItemType      = "WARN_INVALID_ITEM_TYPE"
	MsgInvalidFilterType    = "WARN_INVALID_FILTER_TYPE"
	MsgItemSetupFailed      = "CRIT_ITEM_SETUP"
	MsgRunCancelled         = "CRIT_RUN_CANCELLED"
	MsgItemPanic            = "CRIT_ITEM_PANIC"
	MsgItemStart            = "INFO_ITEM_START"
	MsgItemFinished         = "INFO_ITEM_FINISHED"
	MsgConfigNotFound       = "CRIT_CONFIG_NOT_FOUND"
	MsgConfigInvalid        = "CRIT_CONFIG_INVALID"
	MsgConfigUnreadable     = "CRIT_CONFIG_UNREADABLE"
	MsgServiceBackend       = "CRIT_SERVICE_BACKEND"
	MsgChownFailed          = "WARN_CHOWN"
	MsgObserverFailed       = "WARN_RUN_OBSERVER"
	MsgMaintenanceEnable    = "INFO_MAINTENANCE_ENABLE"
	MsgMaintenanceEnabled   = "INFO_MAINTENANCE_ENABLED"
	MsgMaintenanceDisable   = "INFO_MAINTENANCE_DISABLE"
	MsgMaintenanceDisabled  = "INFO_MAINTENANCE_DISABLED"
	MsgMaintenanceEnableErr = "WARN_MAINTENANCE_ENABLE"
	MsgMaintenanceRequired  = "CRIT_MAINTENANCE_ENABLE"
	MsgMaintenanceDisableEr = "CRIT_MAINTENANCE_DISABLE"
	MsgServiceStart         = "INFO_SERVICE_START"
	MsgServiceStop          = "INFO_SERVICE_STOP"
	MsgServiceStartFailed   = "WARN_SERVICE_START_FAILED"
	MsgServiceStopFailed    = "WARN_SERVICE_STOP_FAILED"
	MsgServiceStillActive   = "INFO_SERVICE_STILL_ACTIVE"
	MsgServiceTooLong       = "WARN_SERVICE_ACTIVE_TOO_LONG"
	MsgServiceCheckFailed   = "WARN_SERVICE_CHECK_FAILED"
	MsgDumpStart            = "INFO_DUMP_START"
	MsgDumpFinished         = "INFO_DUMP_FINISHED"
	MsgDumpTempConfig       = "CRIT_DB_TEMP_CONFIG"
	MsgDumpFailed           = "CRIT_DB_DUMP"
	MsgDumpOpenFile         = "CRIT_DB_DUMP_FILE"
	MsgDumpPathTaken        = "CRIT_DB_DUMP_PATH_TAKEN"
	MsgDatabaseList         = "CRIT_DB_LIST"
	MsgDatabaseEngine       = "CRIT_DB_ENGINE"
	MsgMailboxNoConfigDir   = "WARN_MAILBOX_CONFIG_DIR_NOT_FOUND"
	MsgMailboxNoTool        = "WARN_MAILBOX_TOOL_NOT_FOUND"
	MsgMailboxDumpStart     = "INFO_MAILBOX_DUMP_START"
	MsgMailboxDumpFinished  = "INFO_MAILBOX_DUMP_FINISHED"
	MsgMailboxDumpFailed    = "CRIT_MAILBOX_DUMP"
	MsgWebAppConfigMissing  = "CRIT_WEBAPP_CONFIG_NOT_FOUND"
	MsgWebAppConfig         = "CRIT_WEBAPP_CONFIG"
	MsgWebAppNoDatabase     = "INFO_WEBAPP_NO_DATABASE"
	MsgWebAppUser           = "WARN_WEBAPP_USER"
	MsgWebAppSyncSkipped    = "WARN_WEBAPP_SYNC_SKIPPED"
	MsgSyncStart            = "INFO_SYNC_START"
	MsgSyncCurrentSize      = "INFO_SYNC_CURRENT_SIZE"
	MsgSyncFinished         = "INFO_SYNC_FINISHED"
	MsgSyncFailed           = "CRIT_SYNC"
	MsgSyncSource           = "CRIT_SYNC_SOURCE"
	MsgSyncStats            = "WARN_SYNC_STATS"
	MsgHashFinished         = "INFO_HASH_FINISHED"
	MsgHashOpen             = "WARN_HASH_OPEN"
	MsgLedgerWrite          = "WARN_LEDGER_WRITE"
	MsgCompressStart        = "INFO_COMPRESS_START"
	MsgCompressFinished     = "INFO_COMPRESS_FINISHED"
	MsgCompressFailed       = "CRIT_COMPRESS"
	MsgRemoveRaw            = "WARN_REMOVE_RAW"
)

// catalog holds the default English rendering of every message.
var catalog = map[string]string{
	MsgRunStart:             "Starting backup of %d items.",
	MsgRunFinished:          "Finished backup of %d items in %d seconds. Errors: %d, Warnings: %d",
	MsgDepotNotFound:        "Can not find depot directory at %s.",
	MsgNoItemsConfigured:    "No backup items have been configured.",
	MsgNoItemsAvailable:     "No backup items are available.",
	MsgInvalidItemType:      "%s is not a valid backup item type. Omitting entry %s.",
	MsgInvalidFilterType:    "%s is not a valid backup item type. Ignoring it in the type filter.",
	MsgItemSetupFailed:      "Failed to set up backup item %s: %v",
	MsgRunCancelled:         "Run cancelled, skipping %d remaining items.",
	MsgItemPanic:            "Backup item %s aborted unexpectedly: %v",
	MsgItemStart:            "Starting backup",
	MsgItemFinished:         "Finished backup in %d milliseconds. Errors: %d, Warnings: %d",
	MsgConfigNotFound:       "Can not find configuration file at %s",
	MsgConfigInvalid:        "Invalid configuration file at %s: %v",
	MsgConfigUnreadable:     "Can not read configuration file at %s: %v",
	MsgServiceBackend:       "Can not connect to the service manager: %v",
	MsgChownFailed:          "Failed to change owner of %s to %s: %v",
	MsgObserverFailed:       "Failed to record run %s: %v",
	MsgMaintenanceEnable:    "Enabling maintenance mode via %s.",
	MsgMaintenanceEnabled:   "Maintenance mode enabled.",
	MsgMaintenanceDisable:   "Disabling maintenance mode via %s.",
	MsgMaintenanceDisabled:  "Maintenance mode disabled.",
	MsgMaintenanceEnableErr: "Failed to enable maintenance mode: %v",
	MsgMaintenanceRequired:  "Failed to enable required maintenance mode, no item will run: %v",
	MsgMaintenanceDisableEr: "Failed to disable maintenance mode: %v",
	MsgServiceStart:         "Starting %s.",
	MsgServiceStop:          "Stopping %s.",
	MsgServiceStartFailed:   "Failed to start %s: %v",
	MsgServiceStopFailed:    "Failed to stop %s: %v",
	MsgServiceStillActive:   "%s is still active, waiting %v for it to finish.",
	MsgServiceTooLong:       "Waited %d of %d seconds for %s to finish without success.",
	MsgServiceCheckFailed:   "Failed to check if %s is active: %v",
	MsgDumpStart:            "Starting dump of database %s.",
	MsgDumpFinished:         "Finished dump of database %s with %s in %d milliseconds.",
	MsgDumpTempConfig:       "Failed to write temporary connection file for database %s: %v",
	MsgDumpFailed:           "Failed to create dump of database %s: %v",
	MsgDumpOpenFile:         "Failed to open %s to store the database dump: %v",
	MsgDumpPathTaken:        "Omitting dump of database %s: %s was already written by item %s in this run.",
	MsgDatabaseList:         "Failed to list databases: %v",
	MsgDatabaseEngine:       "%s is not a supported database engine.",
	MsgMailboxNoConfigDir:   "Can not find mail server configuration directory, omitting dump of mailboxes database.",
	MsgMailboxNoTool:        "Can not find %s executable, omitting dump of mailboxes database.",
	MsgMailboxDumpStart:     "Starting dump of mailboxes database.",
	MsgMailboxDumpFinished:  "Finished dump of mailboxes database with %s in %d milliseconds.",
	MsgMailboxDumpFailed:    "Failed to dump mailboxes database to %s: %v",
	MsgWebAppConfigMissing:  "Can not find configuration file %s.",
	MsgWebAppConfig:         "Failed to read database settings from %s: %v",
	MsgWebAppNoDatabase:     "Database type %s is stored inside the application directory, omitting database dump.",
	MsgWebAppUser:           "Can not determine the user owning %s, running without maintenance mode: %v",
	MsgWebAppSyncSkipped:    "Omitting directory sync because the database dump failed.",
	MsgSyncStart:            "Started syncing %s.",
	MsgSyncCurrentSize:      "Current size of the backed up data for %s: Files: %d, Size: %s",
	MsgSyncFinished:         "Finished syncing %s in %d milliseconds: Files: %d, Size: %s",
	MsgSyncFailed:           "Failed to sync %s: %v",
	MsgSyncSource:           "%s does not exist or is not a directory.",
	MsgSyncStats:            "Could not read synchronisation statistics for %s, falling back to a directory scan.",
	MsgHashFinished:         "Calculated SHA256 hash sum of %s in %d milliseconds: %s",
	MsgHashOpen:             "Failed to open %s, omitting SHA256 hash sum calculation: %v",
	MsgLedgerWrite:          "Failed to write SHA256 hash value to %s: %v",
	MsgCompressStart:        "Starting compression of %s.",
	MsgCompressFinished:     "Finished compression of %s with %s in %d milliseconds.",
	MsgCompressFailed:       "Failed to compress %s: %v",
	MsgRemoveRaw:            "Failed to remove uncompressed file %s: %v",
}
