package cache

import "strings"

// Namespace scopes cache keys by owner.
type Namespace string

const NamespaceWallet Namespace = "kadena/wallet"

// StorageKey is the key under which persistent tiers store an entry.
func StorageKey(ns Namespace, key string) string {
	return strings.TrimSuffix(string(ns), "/") + "/" + strings.TrimPrefix(key, "/")
}
