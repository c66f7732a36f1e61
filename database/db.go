package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/leadloop/leadloop/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	if _, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS leadloop`); err != nil {
		return nil, err
	}
	err = createConversationTable(db)
	if err != nil {
		return nil, err
	}
	err = createMessageTable(db)
	if err != nil {
		return nil, err
	}
	err = createFactTable(db)
	if err != nil {
		return nil, err
	}
	err = createStateTransitionTable(db)
	if err != nil {
		return nil, err
	}
	err = createOfferTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createConversationTable creates a PostgreSQL table for the Conversation struct
func createConversationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS leadloop.conversations (
			id SERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL UNIQUE,
			lead_name TEXT,
			lead_phone TEXT,
			state TEXT NOT NULL DEFAULT 'NEW',
			nudge_count INTEGER NOT NULL DEFAULT 0 CHECK (nudge_count >= 0),
			stall_count INTEGER NOT NULL DEFAULT 0 CHECK (stall_count >= 0),
			last_activity TIMESTAMP NOT NULL DEFAULT NOW(),
			wait_until TIMESTAMP,
			pending_question TEXT,
			ai_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_ai_decision TEXT,
			last_ai_decision_at TIMESTAMP,
			last_processed_message_id TEXT,
			processing_lock BOOLEAN NOT NULL DEFAULT FALSE,
			locked_at TIMESTAMP,
			manual_instruction TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	log.Println(err)
	return err
}

// createMessageTable creates a PostgreSQL table for the Message struct
func createMessageTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS leadloop.messages (
			id SERIAL PRIMARY KEY,
			message_id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES leadloop.conversations(conversation_id),
			direction TEXT NOT NULL CHECK (direction IN ('inbound', 'outbound')),
			content TEXT NOT NULL,
			sent_by TEXT NOT NULL CHECK (sent_by IN ('human', 'ai', 'drip', 'customer')),
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

// createFactTable creates a PostgreSQL table for the Fact struct
func createFactTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS leadloop.facts (
			id SERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES leadloop.conversations(conversation_id),
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			collected_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (conversation_id, key)
		)
	`)
	log.Println(err)
	return err
}

// createStateTransitionTable creates a PostgreSQL table for the StateTransition struct
func createStateTransitionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS leadloop.state_transitions (
			id SERIAL PRIMARY KEY,
			transition_id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES leadloop.conversations(conversation_id),
			old_state TEXT NOT NULL,
			new_state TEXT NOT NULL,
			changed_by TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

// createOfferTable creates a PostgreSQL table for the Offer struct
func createOfferTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS leadloop.offers (
			id SERIAL PRIMARY KEY,
			offer_id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES leadloop.conversations(conversation_id),
			lender TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			factor_rate NUMERIC NOT NULL,
			term_months INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}
