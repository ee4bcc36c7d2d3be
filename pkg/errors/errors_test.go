package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable, try again", retryable: true},
		{code: CodeSignature, status: http.StatusBadRequest, publicMsg: "invalid signature"},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
		{code: CodeGateway, status: http.StatusPaymentRequired, publicMsg: "payment was not completed"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	withDetails := base.WithDetails(detail)
	if withDetails.Details() == nil {
		t.Fatalf("details should be preserved")
	}
	if base.Details() != nil {
		t.Fatalf("WithDetails must not mutate the receiver")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeWalksWrappedChain(t *testing.T) {
	inner := New(CodeSignature, "digest mismatch")
	outer := fmt.Errorf("verify callback: %w", inner)
	if !IsCode(outer, CodeSignature) {
		t.Fatalf("expected IsCode to find signature code through wrapping")
	}
	if IsCode(outer, CodeNotFound) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(nil, CodeSignature) {
		t.Fatalf("nil error should not match")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(CodeDependency, stdErrors.New("redis down"), "load cart"))
	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", d.Code)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(d.Chain), d.Chain)
	}
	if d.PGCode != "" {
		t.Fatalf("did not expect postgres fields, got %q", d.PGCode)
	}
}

func TestDumpReadsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "payment_transactions_txn_ref_key", TableName: "payment_transactions"}
	d := Dump(Wrap(CodeConflict, pgErr, "create payment transaction"))

	if d.PGCode != "23505" || d.PGConstraint != "payment_transactions_txn_ref_key" {
		t.Fatalf("unexpected pg fields: %+v", d)
	}
	fields := d.Fields()
	if fields["pg_table"] != "payment_transactions" {
		t.Fatalf("expected pg_table field, got %v", fields)
	}
	if fields["error_code"] != string(CodeConflict) {
		t.Fatalf("expected error_code field, got %v", fields)
	}
	if _, ok := fields["pg_detail"]; ok {
		t.Fatal("empty pg_detail should be omitted")
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || len(d.Fields()) != 0 {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}

func TestIsCodeFindsInnerCode(t *testing.T) {
	inner := New(CodeNotFound, "transaction not found")
	outer := Wrap(CodeDependency, fmt.Errorf("lookup: %w", inner), "load payment transaction")
	if !IsCode(outer, CodeNotFound) {
		t.Fatal("expected inner code to be found")
	}
	if !IsCode(outer, CodeDependency) {
		t.Fatal("expected outer code to be found")
	}
	if IsCode(outer, CodeSignature) {
		t.Fatal("unexpected code match")
	}
}
