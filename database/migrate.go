package database

import (
	"fmt"
	"strings"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/utils"
	"gorm.io/gorm"
)

// Migrate creates the schema and installs the stock guards.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Product{},
		&models.InventoryRecord{},
		&models.Reservation{},
		&models.Customer{},
		&models.ChatSession{},
		&models.ChatMessage{},
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentLink{},
		&models.Delivery{},
		&models.OrderEvent{},
		&models.Notification{},
		&models.KnowledgeChunk{},
	)
	if err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return ExecuteTriggers(db)
}

// stockGuards reject any write that would leave 0 <= reserved <= stock false.
// The ledger already updates conditionally; these catch writes from elsewhere.
// {{table}} is replaced with the inventory model's table name.
var stockGuards = map[string][]string{
	"mysql": {
		`DROP TRIGGER IF EXISTS trg_inventory_guard_update`,
		`CREATE TRIGGER trg_inventory_guard_update BEFORE UPDATE ON {{table}}
FOR EACH ROW
BEGIN
	IF NEW.reserved_packs < 0 OR NEW.stock_packs < 0 OR NEW.reserved_packs > NEW.stock_packs THEN
		SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'inventory counters out of range';
	END IF;
END`,
	},
	"postgres": {
		`ALTER TABLE {{table}} DROP CONSTRAINT IF EXISTS chk_inventory_counters`,
		`ALTER TABLE {{table}} ADD CONSTRAINT chk_inventory_counters
CHECK (reserved_packs >= 0 AND stock_packs >= 0 AND reserved_packs <= stock_packs)`,
	},
	"sqlite": {
		`DROP TRIGGER IF EXISTS trg_inventory_guard_update`,
		`CREATE TRIGGER trg_inventory_guard_update BEFORE UPDATE ON {{table}}
FOR EACH ROW
WHEN NEW.reserved_packs < 0 OR NEW.stock_packs < 0 OR NEW.reserved_packs > NEW.stock_packs
BEGIN
	SELECT RAISE(ABORT, 'inventory counters out of range');
END`,
	},
}

// inventoryTable resolves the table name gorm uses for InventoryRecord.
func inventoryTable(db *gorm.DB) (string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(&models.InventoryRecord{}); err != nil {
		return "", fmt.Errorf("parsing inventory model: %w", err)
	}
	return stmt.Schema.Table, nil
}

func ExecuteTriggers(db *gorm.DB) error {
	dialect := db.Dialector.Name()
	statements, ok := stockGuards[dialect]
	if !ok {
		utils.InfoLogger.Printf("No stock guards for dialect %s", dialect)
		return nil
	}
	table, err := inventoryTable(db)
	if err != nil {
		return err
	}

	for _, stmt := range statements {
		stmt = strings.ReplaceAll(strings.TrimSpace(stmt), "{{table}}", table)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("executing stock guard on %s: %w", dialect, err)
		}
	}
	utils.InfoLogger.Printf("Stock guards installed (%s)", dialect)

	if dialect == "mysql" {
		var triggers []struct {
			TriggerName string
			EventType   string
			TableName   string
			Timing      string
		}
		db.Raw(`
        SELECT
            TRIGGER_NAME as trigger_name,
            EVENT_MANIPULATION as event_type,
            EVENT_OBJECT_TABLE as table_name,
            ACTION_TIMING as timing
        FROM information_schema.triggers
        WHERE TRIGGER_SCHEMA = DATABASE()
    `).Scan(&triggers)

		for _, t := range triggers {
			utils.InfoLogger.Printf("Trigger verified: %s (%s %s on %s)",
				t.TriggerName, t.Timing, t.EventType, t.TableName)
		}
	}
	return nil
}
