package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/wafgate/internal/lognorm"
	"github.com/edvin/wafgate/internal/metrics"
	"github.com/edvin/wafgate/internal/model"
)

// Archiver receives the raw payload of every ingest batch. Implemented by
// archive.S3Archiver; nil disables archival.
type Archiver interface {
	Archive(ctx context.Context, receivedAt time.Time, raw []byte) error
}

// LogService ingests engine log shipments and serves filtered queries over
// the normalized records.
type LogService struct {
	db       DB
	archiver Archiver
	logger   zerolog.Logger
}

func NewLogService(db DB, logger zerolog.Logger) *LogService {
	return &LogService{
		db:     db,
		logger: logger.With().Str("service", "log").Logger(),
	}
}

// SetArchiver wires raw-payload archival into the ingest path.
func (s *LogService) SetArchiver(a Archiver) { s.archiver = a }

// LogQueryParams is a validated log query. Nil fields are unfiltered.
type LogQueryParams struct {
	From   *time.Time
	To     *time.Time
	IP     *string
	URI    *string
	Method *string
	Status *int
	Action *string
	Source *string
	RuleID *int
	Page   int
	Limit  int
}

// LogQueryResult is one page of matching records plus paging metadata.
type LogQueryResult struct {
	Items   []model.LogRecord `json:"items"`
	Total   int               `json:"total"`
	Page    int               `json:"page"`
	Limit   int               `json:"limit"`
	HasNext bool              `json:"has_next"`
}

// Ingest accepts a shipment of one or more raw log objects, normalizes each
// and stores the results. Ingestion is best-effort per record: a record that
// cannot be stored is logged and skipped, never failing the batch. Returns
// the number of records stored.
func (s *LogService) Ingest(ctx context.Context, payload []byte) (int, error) {
	now := time.Now()

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, now, payload); err != nil {
			s.logger.Warn().Err(err).Msg("raw payload archival failed")
		}
	}

	records, err := splitPayload(payload)
	if err != nil {
		return 0, &ValidationError{Reason: "payload is not valid JSON"}
	}

	stored := 0
	for _, raw := range records {
		rec := lognorm.Normalize(raw, now)
		if err := s.insert(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Msg("log record insert failed; record skipped")
			continue
		}
		metrics.LogRecordsIngested.WithLabelValues(rec.Source, rec.Action).Inc()
		stored++
	}
	return stored, nil
}

// splitPayload turns the shipment into individual record payloads. A JSON
// array is one record per element; any other JSON value is a single record.
func splitPayload(payload []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, fmt.Errorf("empty payload")
	}
	if trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return nil, fmt.Errorf("decode payload array: %w", err)
		}
		return records, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("invalid JSON payload")
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

func (s *LogService) insert(ctx context.Context, rec *model.LogRecord) error {
	reqHeaders, err := marshalHeaders(rec.RequestHeaders)
	if err != nil {
		return fmt.Errorf("encode request headers: %w", err)
	}
	respHeaders, err := marshalHeaders(rec.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("encode response headers: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO logs (ts, source, action, client_ip, method, uri, status, rule_ids,
		                   request_headers, response_headers, request_body, response_body,
		                   tenant_id, raw)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.TS, rec.Source, rec.Action, rec.IP, rec.Method, rec.URI, rec.Status,
		rec.RuleIDs, reqHeaders, respHeaders, rec.RequestBody, rec.ResponseBody,
		rec.TenantID, rec.Raw,
	)
	if err != nil {
		return fmt.Errorf("insert log record: %w", err)
	}
	return nil
}

func marshalHeaders(h map[string]string) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

// Query returns the tenant's records matching the filters, newest first.
func (s *LogService) Query(ctx context.Context, tenantID string, params LogQueryParams) (*LogQueryResult, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}

	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if params.From != nil {
		add("ts >= $%d", *params.From)
	}
	if params.To != nil {
		add("ts <= $%d", *params.To)
	}
	if params.IP != nil {
		add("client_ip = $%d", *params.IP)
	}
	if params.URI != nil {
		add("uri ILIKE $%d", "%"+*params.URI+"%")
	}
	if params.Method != nil {
		add("method = $%d", strings.ToUpper(*params.Method))
	}
	if params.Status != nil {
		add("status = $%d", *params.Status)
	}
	if params.Action != nil {
		add("action = $%d", *params.Action)
	}
	if params.Source != nil {
		add("source = $%d", *params.Source)
	}
	if params.RuleID != nil {
		add("$%d = ANY(rule_ids)", *params.RuleID)
	}

	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow(ctx,
		"SELECT count(*) FROM logs WHERE "+clause, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count log records: %w", err)
	}

	limitArgs := append(args, params.Limit, (params.Page-1)*params.Limit)
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT id, ts, source, action, client_ip, method, uri, status, rule_ids,
		                    request_headers, response_headers, request_body, response_body,
		                    tenant_id, raw
		             FROM logs WHERE %s ORDER BY ts DESC LIMIT $%d OFFSET $%d`,
			clause, len(args)+1, len(args)+2),
		limitArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("query log records: %w", err)
	}
	defer rows.Close()

	items := []model.LogRecord{}
	for rows.Next() {
		var rec model.LogRecord
		var reqHeaders, respHeaders []byte
		if err := rows.Scan(&rec.ID, &rec.TS, &rec.Source, &rec.Action, &rec.IP,
			&rec.Method, &rec.URI, &rec.Status, &rec.RuleIDs,
			&reqHeaders, &respHeaders, &rec.RequestBody, &rec.ResponseBody,
			&rec.TenantID, &rec.Raw); err != nil {
			return nil, fmt.Errorf("scan log record: %w", err)
		}
		if err := unmarshalHeaders(reqHeaders, &rec.RequestHeaders); err != nil {
			return nil, fmt.Errorf("decode request headers: %w", err)
		}
		if err := unmarshalHeaders(respHeaders, &rec.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("decode response headers: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log records: %w", err)
	}

	return &LogQueryResult{
		Items:   items,
		Total:   total,
		Page:    params.Page,
		Limit:   params.Limit,
		HasNext: params.Page*params.Limit < total,
	}, nil
}

func unmarshalHeaders(data []byte, dst *map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// Prune deletes records older than maxAge and returns how many were removed.
func (s *LogService) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	tag, err := s.db.Exec(ctx, "DELETE FROM logs WHERE ts < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune log records: %w", err)
	}
	metrics.LogRecordsPruned.Add(float64(tag.RowsAffected()))
	return tag.RowsAffected(), nil
}
