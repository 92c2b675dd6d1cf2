package db

import "database/sql"

// KV adapts the kv table to the store.KV interface.
type KV struct {
	conn *sql.DB
}

func NewKV(conn *sql.DB) *KV {
	return &KV{conn: conn}
}

func (k *KV) Get(key string) (string, bool, error) {
	return GetValue(k.conn, key)
}

func (k *KV) Set(key, value string) error {
	return SetValue(k.conn, key, value)
}

func (k *KV) Remove(key string) error {
	return DeleteValue(k.conn, key)
}

// SetMany writes all values in one transaction.
func (k *KV) SetMany(values map[string]string) error {
	tx, err := StartTransaction(k.conn)
	if err != nil {
		return err
	}
	for key, value := range values {
		if err := SetValueWithTx(tx, key, value); err != nil {
			RollbackTransaction(tx)
			return err
		}
	}
	return CommitTransaction(tx)
}
