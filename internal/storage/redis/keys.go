package redis

import "fmt"

// Key generation for one partition. Every key of a partition shares the
// {service:partition} hash tag so a cluster keeps them on one slot.

func (s *Store) partitionKey() string {
	return fmt.Sprintf("%s:{%s:%d}", s.cfg.KeyPrefix, s.service, s.partition)
}

// dictKey returns the HASH holding a dictionary
func (s *Store) dictKey(dict string) string {
	return fmt.Sprintf("%s:d:%s", s.partitionKey(), dict)
}

// lockKey returns the update lock of one dictionary key
func (s *Store) lockKey(dict, key string) string {
	return fmt.Sprintf("%s:l:%s:%s", s.partitionKey(), dict, key)
}

// ownerKey returns the key naming the partition's owning node
func (s *Store) ownerKey() string {
	return fmt.Sprintf("%s:owner", s.partitionKey())
}
