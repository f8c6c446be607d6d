package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mcoot/partyroom/internal/partition"
)

// PartitionParam is the query parameter naming the partition an RPC targets
const PartitionParam = "partition"

// decodeBody reads a JSON request body
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewInvalidRequestError("Invalid request body")
	}
	return nil
}

// targetPartition parses the partition query parameter
func targetPartition(r *http.Request, router partition.Router) (int, error) {
	raw := r.URL.Query().Get(PartitionParam)
	p, err := strconv.Atoi(raw)
	if err != nil || p < 0 || p >= router.Count() {
		return 0, NewInvalidRequestError(fmt.Sprintf("invalid partition %q", raw))
	}
	return p, nil
}

// checkKeyPartition rejects calls whose partition parameter disagrees with
// the partition the key hashes to
func checkKeyPartition(r *http.Request, router partition.Router, key string) error {
	p, err := targetPartition(r, router)
	if err != nil {
		return err
	}
	if want := router.Of(key); want != p {
		return NewInvalidRequestError(fmt.Sprintf("key %q belongs to partition %d, not %d", key, want, p))
	}
	return nil
}
