package fields

import (
	"testing"

	"github.com/opensource-crm/kestrel/internal/domain"
)

func TestApplyComputesDerivedFields(t *testing.T) {
	mapper, err := NewMapper([]domain.DerivedField{
		{Name: "Usage_Ratio__c", Expression: `double(record["active_seats"]) / double(record["licensed_seats"]) * 100.0`},
		{Name: "Is_Enterprise__c", Expression: `record["licensed_seats"] >= 500.0`},
	})
	if err != nil {
		t.Fatalf("failed to build mapper: %v", err)
	}

	record := domain.Record{
		"active_seats":   250.0,
		"licensed_seats": 500.0,
	}

	out := mapper.Apply(record)

	if got, ok := out.Get("Usage_Ratio__c"); !ok || got.(float64) != 50.0 {
		t.Errorf("expected Usage_Ratio__c 50.0, got %v", got)
	}
	if got, ok := out.Get("Is_Enterprise__c"); !ok || got.(bool) != true {
		t.Errorf("expected Is_Enterprise__c true, got %v", got)
	}

	// Raw fields survive the merge
	if _, ok := out.Get("active_seats"); !ok {
		t.Error("raw fields should be preserved")
	}

	// Input record is not mutated
	if _, ok := record.Get("Usage_Ratio__c"); ok {
		t.Error("Apply must not mutate its input")
	}
}

func TestApplySkipsFailedFields(t *testing.T) {
	mapper, err := NewMapper([]domain.DerivedField{
		{Name: "Broken__c", Expression: `double(record["missing_field"]) * 2.0`},
		{Name: "Fine__c", Expression: `double(record["present"]) + 1.0`},
	})
	if err != nil {
		t.Fatalf("failed to build mapper: %v", err)
	}

	out := mapper.Apply(domain.Record{"present": 9.0})

	if _, ok := out.Get("Broken__c"); ok {
		t.Error("field with a failed evaluation should be absent")
	}
	if got, ok := out.Get("Fine__c"); !ok || got.(float64) != 10.0 {
		t.Errorf("expected Fine__c 10.0, got %v", got)
	}
}

func TestNewMapperRejectsBadExpressions(t *testing.T) {
	_, err := NewMapper([]domain.DerivedField{
		{Name: "Bad__c", Expression: `this is not valid CEL !!!`},
	})
	if err == nil {
		t.Fatal("expected compile error for invalid expression")
	}

	_, err = NewMapper([]domain.DerivedField{
		{Name: "", Expression: `1.0`},
	})
	if err == nil {
		t.Fatal("expected error for unnamed derived field")
	}
}

func TestValidateSingleField(t *testing.T) {
	if err := Validate(domain.DerivedField{Name: "X", Expression: `record["a"]`}); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := Validate(domain.DerivedField{Name: "X", Expression: `record[`}); err == nil {
		t.Error("expected error for malformed expression")
	}
}
