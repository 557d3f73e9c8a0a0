package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by the durable backends. Each bucket is stored as one
// JSON document so a commit rewrites at most three rows.
const (
	BucketItems  = "items"
	BucketOrders = "orders"
	BucketMeta   = "meta"
)

// Buckets lists every bucket in write order.
var Buckets = []string{BucketItems, BucketOrders, BucketMeta}

type snapshotMeta struct {
	LastOrderID    int64  `json:"last_order_id"`
	CatalogVersion uint64 `json:"catalog_version"`
}

// EncodeBuckets serialises a snapshot into named JSON payloads.
func EncodeBuckets(s Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	items, err := json.Marshal(s.Items)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketItems, err)
	}
	out[BucketItems] = items
	orders, err := json.Marshal(s.Orders)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketOrders, err)
	}
	out[BucketOrders] = orders
	meta, err := json.Marshal(snapshotMeta{LastOrderID: s.LastOrderID, CatalogVersion: s.CatalogVersion})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketMeta, err)
	}
	out[BucketMeta] = meta
	return out, nil
}

// DecodeBucket applies one stored payload to the snapshot. Unknown buckets
// are ignored so that older databases with extra rows still load.
func DecodeBucket(s *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	switch bucket {
	case BucketItems:
		if err := json.Unmarshal(payload, &s.Items); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	case BucketOrders:
		if err := json.Unmarshal(payload, &s.Orders); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	case BucketMeta:
		var meta snapshotMeta
		if err := json.Unmarshal(payload, &meta); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
		s.LastOrderID = meta.LastOrderID
		s.CatalogVersion = meta.CatalogVersion
	}
	return nil
}
