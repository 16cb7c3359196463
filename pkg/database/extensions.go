package database

import (
	"strings"

	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/executor"
	"github.com/tegdb/tegdb/pkg/sql"
)

// Extension é um provider in-process: um conjunto de funções escalares
// puras sobre valores SQL. O core não inspeciona os corpos; só despacha
// pelo nome via registry.
type Extension struct {
	Name      string
	Functions map[string]executor.ScalarFunc
}

// RegisterExtension disponibiliza um provider para CREATE EXTENSION.
// Registrar não ativa: as funções só entram no registry com o DDL.
func (db *Database) RegisterExtension(ext *Extension) error {
	lower := strings.ToLower(ext.Name)
	if _, exists := db.extensions[lower]; exists {
		return &errors.SchemaError{Msg: "extension " + ext.Name + " already registered"}
	}
	db.extensions[lower] = ext
	return nil
}

func (db *Database) createExtension(s *sql.CreateExtensionStmt) error {
	if s.Path != "" {
		// Carregamento de biblioteca dinâmica é um colaborador externo
		return &errors.FeatureUnsupportedError{Feature: "CREATE EXTENSION ... WITH PATH (dynamic loading)"}
	}

	lower := strings.ToLower(s.Name)
	ext, ok := db.extensions[lower]
	if !ok {
		return &errors.ExtensionNotFoundError{Name: s.Name}
	}
	if _, activated := db.active[lower]; activated {
		return &errors.SchemaError{Msg: "extension " + s.Name + " already created"}
	}

	var registered []string
	for name, fn := range ext.Functions {
		if err := db.registry.Register(name, fn); err != nil {
			// Desfaz o que já entrou
			for _, r := range registered {
				db.registry.Unregister(r)
			}
			return err
		}
		registered = append(registered, name)
	}

	db.active[lower] = ext
	return nil
}

func (db *Database) dropExtension(s *sql.DropExtensionStmt) error {
	lower := strings.ToLower(s.Name)
	ext, ok := db.active[lower]
	if !ok {
		return &errors.ExtensionNotFoundError{Name: s.Name}
	}
	for name := range ext.Functions {
		db.registry.Unregister(name)
	}
	delete(db.active, lower)
	return nil
}
