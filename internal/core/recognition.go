package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	blobcore "stockroom/internal/infra/blob/core"
	"stockroom/pkg/domain"
)

// Recognition is a classifier's candidate stock entry for one photographed item.
type Recognition struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Condition string          `json:"condition,omitempty"`
	Category  string          `json:"category,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Field names emitted by the image classifier, with plain English fallbacks.
var (
	recognitionNameKeys      = []string{"elemento_identificado", "name"}
	recognitionQuantityKeys  = []string{"cantidad_aproximada", "quantity"}
	recognitionConditionKeys = []string{"estado_condicion", "condition"}
	recognitionCategoryKeys  = []string{"posible_categoria_de_inventario", "category"}
)

// ParseRecognition decodes a classifier response. The payload may be wrapped
// in a markdown code fence. A payload carrying an "error" field, or lacking a
// usable name or positive quantity, is rejected as InvalidArgument.
func ParseRecognition(raw []byte) (Recognition, error) {
	body := stripCodeFence(raw)
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Recognition{}, domain.InvalidArgument("recognition", fmt.Sprintf("not a JSON object: %v", err))
	}
	if msg, ok := fields["error"]; ok {
		return Recognition{}, domain.InvalidArgument("recognition", "classifier reported: "+stringValue(msg))
	}
	rec := Recognition{
		Name:      strings.TrimSpace(lookupString(fields, recognitionNameKeys)),
		Condition: strings.TrimSpace(lookupString(fields, recognitionConditionKeys)),
		Category:  strings.TrimSpace(lookupString(fields, recognitionCategoryKeys)),
		Raw:       json.RawMessage(body),
	}
	var violations []domain.FieldViolation
	if rec.Name == "" {
		violations = append(violations, domain.FieldViolation{Field: recognitionNameKeys[0], Reason: "missing"})
	}
	qty, err := lookupQuantity(fields, recognitionQuantityKeys)
	switch {
	case err != nil:
		violations = append(violations, domain.FieldViolation{Field: recognitionQuantityKeys[0], Reason: err.Error()})
	case qty <= 0:
		violations = append(violations, domain.FieldViolation{Field: recognitionQuantityKeys[0], Reason: fmt.Sprintf("must be positive, got %d", qty)})
	}
	if len(violations) > 0 {
		return Recognition{}, domain.InvalidArgumentError{Violations: violations}
	}
	rec.Quantity = qty
	return rec, nil
}

func stripCodeFence(raw []byte) []byte {
	body := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(body, []byte("```")) {
		return body
	}
	body = body[3:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		// drop the language tag line
		body = body[nl+1:]
	}
	body = bytes.TrimSpace(body)
	body = bytes.TrimSuffix(body, []byte("```"))
	return bytes.TrimSpace(body)
}

func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func lookupString(fields map[string]json.RawMessage, keys []string) string {
	for _, key := range keys {
		if raw, ok := fields[key]; ok {
			return stringValue(raw)
		}
	}
	return ""
}

// lookupQuantity accepts a JSON number or a numeric string. Fractions are
// truncated since stock is counted in whole units.
func lookupQuantity(fields map[string]json.RawMessage, keys []string) (int, error) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		text := strings.TrimSpace(stringValue(raw))
		n, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("not a number: %s", text)
		}
		if n > math.MaxInt32 {
			return 0, fmt.Errorf("too large: %s", text)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("missing")
}

// RegisterRecognition records a recognized item in the inventory exactly like
// a manual entry, tagged with image provenance. When a blob store is
// configured the raw classifier output is archived first and linked from the item.
func (s *Service) RegisterRecognition(ctx context.Context, rec Recognition) (domain.InventoryItem, error) {
	if err := validateUpsert(rec.Name, rec.Quantity, domain.ProvenanceImage); err != nil {
		return domain.InventoryItem{}, s.observe(ctx, "register_recognition", func(context.Context) error { return err })
	}
	var key string
	if s.blobs != nil {
		payload := rec.Raw
		if len(payload) == 0 {
			encoded, err := json.Marshal(rec)
			if err != nil {
				return domain.InventoryItem{}, fmt.Errorf("encode recognition: %w", err)
			}
			payload = encoded
		}
		key = "recognitions/" + uuid.NewString() + ".json"
		err := s.observe(ctx, "store_recognition", func(ctx context.Context) error {
			_, err := s.blobs.Put(ctx, key, bytes.NewReader(payload), blobcore.PutOptions{
				ContentType: blobcore.ContentTypeJSON,
				Metadata:    map[string]string{"source": string(domain.ProvenanceImage)},
			})
			if err != nil {
				return domain.UnavailableError{Operation: "store_recognition", Err: err}
			}
			return nil
		})
		if err != nil {
			return domain.InventoryItem{}, err
		}
		s.logger.Debug("recognition archived", zap.String("key", key))
	}
	return s.upsertItem(ctx, "register_recognition", rec.Name, rec.Quantity, domain.ProvenanceImage, key)
}
