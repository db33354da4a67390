package classify

import (
	"reflect"
	"testing"
)

func TestModulePriorityUsersBeforeAuth(t *testing.T) {
	res := Classify("GET", "/api/users/507f1f77bcf86cd799439011")
	if res.Module != "users" {
		t.Fatalf("expected module users, got %q", res.Module)
	}

	res = Classify("POST", "/api/user/login")
	if res.Module != "auth" {
		t.Fatalf("expected module auth, got %q", res.Module)
	}
	if res.Action != "login" {
		t.Fatalf("expected action login, got %q", res.Action)
	}
}

func TestModuleFallbackOther(t *testing.T) {
	res := Classify("GET", "/health")
	if res.Module != "other" {
		t.Fatalf("expected module other, got %q", res.Module)
	}
}

func TestActionDerivation(t *testing.T) {
	cases := []struct {
		method, path, action string
	}{
		{"GET", "/api/records/507f1f77bcf86cd799439011", "get-one"},
		{"GET", "/api/records", "get-list"},
		{"POST", "/api/records/bulk", "bulk-create"},
		{"PUT", "/api/records/bulk", "bulk-update"},
		{"POST", "/api/records", "create"},
		{"PUT", "/api/records/507f1f77bcf86cd799439011", "update"},
		{"PATCH", "/api/records/507f1f77bcf86cd799439011", "partial-update"},
		{"DELETE", "/api/records/507f1f77bcf86cd799439011", "delete"},
		{"POST", "/api/excel/upload", "upload"},
		{"GET", "/api/invoices/export", "export"},
		{"OPTIONS", "/api/records", "unknown"},
	}
	for _, tc := range cases {
		res := Classify(tc.method, tc.path)
		if res.Action != tc.action {
			t.Errorf("%s %s: expected action %q, got %q", tc.method, tc.path, tc.action, res.Action)
		}
	}
}

func TestEntityExtraction(t *testing.T) {
	res := Classify("GET", "/api/invoices/5f8d0d55b54764421b7156c3/download")
	if res.EntityID != "5f8d0d55b54764421b7156c3" {
		t.Fatalf("expected entity id extracted, got %q", res.EntityID)
	}
	if res.EntityType != "invoice" {
		t.Fatalf("expected entity type invoice, got %q", res.EntityType)
	}
	if res.Action != "download" {
		t.Fatalf("expected action download, got %q", res.Action)
	}
	if res.Module != "invoicing" {
		t.Fatalf("expected module invoicing, got %q", res.Module)
	}
}

func TestEntityIDAbsent(t *testing.T) {
	res := Classify("GET", "/api/containers")
	if res.EntityID != "" {
		t.Fatalf("expected no entity id, got %q", res.EntityID)
	}
	if res.EntityType != "container" {
		t.Fatalf("expected entity type container, got %q", res.EntityType)
	}
}

func TestSapFtpAlternation(t *testing.T) {
	for _, path := range []string{"/api/ftp/push", "/api/sftp/pull", "/api/sap/records"} {
		res := Classify("POST", path)
		if res.Module != "sap-ftp" {
			t.Errorf("%s: expected module sap-ftp, got %q", path, res.Module)
		}
	}
}

func TestClassifyIsPure(t *testing.T) {
	first := Classify("GET", "/api/trucking/507f1f77bcf86cd799439011")
	second := Classify("GET", "/api/trucking/507f1f77bcf86cd799439011")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("classification differs between calls: %+v vs %+v", first, second)
	}
}
