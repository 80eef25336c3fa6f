package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/bitesync/internal/dashboard"
	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/schedule"
)

func TestMeHandler_Dashboard_UsesIdentity(t *testing.T) {
	dash := &mockDashboard{
		loadFn: func(ctx context.Context, identity model.Identity) (*dashboard.View, error) {
			d := schedule.DefaultSchedule()
			return &dashboard.View{
				Profile:          &model.UserProfile{ID: identity.ID, Email: identity.Email},
				ScheduleDefaults: &d,
			}, nil
		},
	}
	h := NewMeHandler(dash, &mockScheduleReader{}, &mockRoleLister{})

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/me", nil), "u1")
	w := httptest.NewRecorder()

	h.Dashboard(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var view dashboard.View
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Profile == nil || view.Profile.ID != "u1" || view.Profile.Email != "u1@example.com" {
		t.Errorf("profile = %+v", view.Profile)
	}
	if view.Schedule != nil {
		t.Errorf("schedule = %+v, want nil", view.Schedule)
	}
	if view.ScheduleDefaults == nil || view.ScheduleDefaults.Timezone != schedule.DefaultTimezone {
		t.Errorf("schedule_defaults = %+v", view.ScheduleDefaults)
	}
}

func TestMeHandler_Unauthenticated_Returns401(t *testing.T) {
	h := NewMeHandler(&mockDashboard{}, &mockScheduleReader{}, &mockRoleLister{})

	handlers := map[string]http.HandlerFunc{
		"Dashboard":     h.Dashboard,
		"UpdateProfile": h.UpdateProfile,
		"GetSchedule":   h.GetSchedule,
		"SaveSchedule":  h.SaveSchedule,
	}
	for name, fn := range handlers {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", strings.NewReader(`{}`))
			w := httptest.NewRecorder()
			fn(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestMeHandler_UpdateProfile_PartialPatch(t *testing.T) {
	var gotPatch model.ProfilePatch
	dash := &mockDashboard{
		updateProfileFn: func(ctx context.Context, userID string, patch model.ProfilePatch) (*model.UserProfile, error) {
			gotPatch = patch
			return &model.UserProfile{ID: userID, Role: "designer", Team: model.DefaultTeam}, nil
		},
	}
	h := NewMeHandler(dash, &mockScheduleReader{}, &mockRoleLister{})

	req := withIdentity(httptest.NewRequest(http.MethodPatch, "/api/me/profile",
		strings.NewReader(`{"name":"","role":"Designer"}`)), "u1")
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotPatch.Name == nil || *gotPatch.Name != "" {
		t.Errorf("Name = %v, want empty string pointer", gotPatch.Name)
	}
	if gotPatch.Role == nil || *gotPatch.Role != "Designer" {
		t.Errorf("Role = %v, want Designer", gotPatch.Role)
	}
	if gotPatch.Team != nil {
		t.Errorf("Team = %v, want nil", gotPatch.Team)
	}
}

func TestMeHandler_GetSchedule_NotFound_Returns404(t *testing.T) {
	h := NewMeHandler(&mockDashboard{}, &mockScheduleReader{}, &mockRoleLister{})

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/me/schedule", nil), "u1")
	w := httptest.NewRecorder()

	h.GetSchedule(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if got := parseAPIErrorResponse(t, w)["code"]; got != model.ErrCodeScheduleNotFound {
		t.Errorf("code = %q, want %q", got, model.ErrCodeScheduleNotFound)
	}
}

func TestMeHandler_SaveSchedule(t *testing.T) {
	var gotFields model.ScheduleFields
	dash := &mockDashboard{
		saveScheduleFn: func(ctx context.Context, userID string, fields model.ScheduleFields) (*model.UserSchedule, error) {
			gotFields = fields
			if fields.Timezone != nil && *fields.Timezone == "Mars/Base" {
				return nil, model.NewValidationError("unknown timezone")
			}
			return &model.UserSchedule{ID: "s1", UserID: userID, Timezone: *fields.Timezone}, nil
		},
	}
	h := NewMeHandler(dash, &mockScheduleReader{}, &mockRoleLister{})

	t.Run("保存", func(t *testing.T) {
		req := withIdentity(httptest.NewRequest(http.MethodPut, "/api/me/schedule",
			strings.NewReader(`{"timezone":"Asia/Tokyo","work_hours_start":"10:00"}`)), "u1")
		w := httptest.NewRecorder()

		h.SaveSchedule(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if gotFields.WorkHoursStart == nil || *gotFields.WorkHoursStart != "10:00" {
			t.Errorf("WorkHoursStart = %v", gotFields.WorkHoursStart)
		}
		if gotFields.WorkHoursEnd != nil {
			t.Errorf("WorkHoursEnd = %v, want nil", gotFields.WorkHoursEnd)
		}
	})

	t.Run("検証エラー", func(t *testing.T) {
		req := withIdentity(httptest.NewRequest(http.MethodPut, "/api/me/schedule",
			strings.NewReader(`{"timezone":"Mars/Base"}`)), "u1")
		w := httptest.NewRecorder()

		h.SaveSchedule(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestMeHandler_ListRoles_EmptyIsArray(t *testing.T) {
	h := NewMeHandler(&mockDashboard{}, &mockScheduleReader{}, &mockRoleLister{})

	req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
	w := httptest.NewRecorder()

	h.ListRoles(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestCommitmentHandler_CRUD(t *testing.T) {
	var deletedID string
	svc := &mockCommitmentService{
		updateFn: func(ctx context.Context, userID, id string, in schedule.CommitmentInput) (*model.Commitment, error) {
			if userID != "u1" {
				return nil, model.NewCommitmentNotFoundError(id)
			}
			return &model.Commitment{ID: id, Type: in.Type}, nil
		},
		deleteFn: func(ctx context.Context, userID, id string) error {
			deletedID = id
			return nil
		},
	}
	h := NewCommitmentHandler(svc)

	t.Run("作成", func(t *testing.T) {
		req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/me/schedule/commitments",
			strings.NewReader(`{"type":"Meetings","title":"1:1"}`)), "u1")
		w := httptest.NewRecorder()
		h.Create(w, req)
		if w.Code != http.StatusCreated {
			t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
		}
	})

	t.Run("他ユーザーの更新", func(t *testing.T) {
		req := withIdentity(httptest.NewRequest(http.MethodPut, "/api/me/schedule/commitments/c1",
			strings.NewReader(`{"type":"Meetings"}`)), "u2")
		req = withChiURLParam(req, "id", "c1")
		w := httptest.NewRecorder()
		h.Update(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("削除", func(t *testing.T) {
		req := withIdentity(httptest.NewRequest(http.MethodDelete, "/api/me/schedule/commitments/c9", nil), "u1")
		req = withChiURLParam(req, "id", "c9")
		w := httptest.NewRecorder()
		h.Delete(w, req)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if deletedID != "c9" {
			t.Errorf("deleted id = %q, want c9", deletedID)
		}
	})

	t.Run("一覧が空", func(t *testing.T) {
		req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/me/schedule/commitments", nil), "u1")
		w := httptest.NewRecorder()
		h.List(w, req)
		if body := strings.TrimSpace(w.Body.String()); body != "[]" {
			t.Errorf("body = %s, want []", body)
		}
	})
}
