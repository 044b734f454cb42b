package models

import "testing"

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel {
			u := &User{}
			return &u.BaseModel
		}},
		{"notification", func() *BaseModel {
			n := &Notification{}
			return &n.BaseModel
		}},
		{"user_notification", func() *BaseModel {
			un := &UserNotification{}
			return &un.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := tc.model()
			if err := base.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if base.ID == "" {
				t.Fatal("expected generated ID")
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	for _, role := range AllRoles {
		parsed, ok := ParseRole(string(role))
		if !ok || parsed != role {
			t.Fatalf("expected %q to parse", role)
		}
	}

	if _, ok := ParseRole("principal"); ok {
		t.Fatal("expected unknown role to be rejected")
	}
	if _, ok := ParseRole(""); ok {
		t.Fatal("expected empty role to be rejected")
	}
}

func TestNotificationTypeValid(t *testing.T) {
	for _, typ := range []NotificationType{TypeGeneral, TypeAnnouncement, TypeAssignment, TypeEvent, TypePayment} {
		if !typ.Valid() {
			t.Fatalf("expected %q to be valid", typ)
		}
	}
	if NotificationType("reminder").Valid() {
		t.Fatal("expected unknown type to be rejected")
	}
}
