package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

const testSecret = "test-secret"

func newAuthApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(RequireAuth(secret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(CallerID(c) + ":" + CallerRole(c))
	})
	app.Post("/owners-only", RequireRole(RoleOwner, RoleOps), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRequireAuth(t *testing.T) {
	app := newAuthApp(testSecret)

	valid, err := IssueToken(testSecret, "owner-1", RoleOwner, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := IssueToken(testSecret, "owner-1", RoleOwner, -time.Minute)
	forged, _ := IssueToken("other-secret", "owner-1", RoleOwner, time.Hour)

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantBody   string
	}{
		{"valid", valid, 200, "owner-1:owner"},
		{"missing", "", 401, ""},
		{"expired", expired, 401, ""},
		{"wrong key", forged, 401, ""},
		{"garbage", "not-a-jwt", 401, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, "GET", "/whoami", tt.token)
			if status != tt.wantStatus {
				t.Fatalf("expected %d, got %d (%s)", tt.wantStatus, status, body)
			}
			if tt.wantBody != "" && body != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, body)
			}
		})
	}
}

func TestRequireAuthDisabled(t *testing.T) {
	app := newAuthApp("")
	status, body := do(t, app, "GET", "/whoami", "")
	if status != 200 || body != ":" {
		t.Fatalf("open access expected, got %d %q", status, body)
	}
	if status, _ := do(t, app, "POST", "/owners-only", ""); status != fiber.StatusNoContent {
		t.Fatalf("role check should not apply without auth, got %d", status)
	}
}

func TestRequireRole(t *testing.T) {
	app := newAuthApp(testSecret)
	owner, _ := IssueToken(testSecret, "owner-1", RoleOwner, time.Hour)
	driver, _ := IssueToken(testSecret, "D1", RoleDriver, time.Hour)

	if status, _ := do(t, app, "POST", "/owners-only", owner); status != fiber.StatusNoContent {
		t.Fatalf("owner should pass, got %d", status)
	}
	if status, _ := do(t, app, "POST", "/owners-only", driver); status != fiber.StatusForbidden {
		t.Fatalf("driver should be forbidden, got %d", status)
	}
}

func TestContextTimeout(t *testing.T) {
	app := fiber.New()
	app.Use(ContextTimeout(time.Minute))
	app.Get("/", func(c *fiber.Ctx) error {
		deadline, ok := c.UserContext().Deadline()
		if !ok || time.Until(deadline) > time.Minute {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendStatus(fiber.StatusOK)
	})
	if status, _ := do(t, app, "GET", "/", ""); status != fiber.StatusOK {
		t.Fatalf("expected a bounded context, got %d", status)
	}
}
