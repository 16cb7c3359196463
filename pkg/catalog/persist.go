package catalog

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Persistência do catálogo: schemas e definições de índice viram documentos
// BSON nas chaves reservadas "__schema__<table>" e "__index__<table>:<name>".

// MarshalSchema serializa o schema para o valor da chave de catálogo.
func MarshalSchema(s *TableSchema) ([]byte, error) {
	data, err := bson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema %q: %w", s.Name, err)
	}
	return data, nil
}

// UnmarshalSchema reconstrói o schema a partir do valor persistido.
func UnmarshalSchema(data []byte) (*TableSchema, error) {
	var s TableSchema
	if err := bson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}
	return &s, nil
}

// MarshalIndexDef serializa a definição de índice secundário.
func MarshalIndexDef(def *IndexDef) ([]byte, error) {
	data, err := bson.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshaling index %q: %w", def.Name, err)
	}
	return data, nil
}

// UnmarshalIndexDef reconstrói a definição de índice.
func UnmarshalIndexDef(data []byte) (*IndexDef, error) {
	var def IndexDef
	if err := bson.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("unmarshaling index definition: %w", err)
	}
	return &def, nil
}
