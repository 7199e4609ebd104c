package middleware

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Caller roles carried in the token.
const (
	RoleOwner  = "owner"
	RoleDriver = "driver"
	RoleOps    = "ops"
)

const (
	localCallerID   = "caller_id"
	localCallerRole = "caller_role"
)

// Claims identify the caller. The subject is the owner or driver ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAuth validates a bearer JWT signed with secret and stores the
// caller on the request. An empty secret disables the check for local runs.
func RequireAuth(secret string) fiber.Handler {
	if secret == "" {
		log.Println("⚠️  JWT_SECRET not set - API authentication DISABLED")
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Authorization header",
			})
		}
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid Authorization format",
			})
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}
		if claims.Subject == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token has no subject",
			})
		}

		c.Locals(localCallerID, claims.Subject)
		c.Locals(localCallerRole, claims.Role)
		return c.Next()
	}
}

// RequireRole rejects callers whose token role is not one of roles.
// Requests let through without authentication pass unchecked.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, authenticated := c.Locals(localCallerRole).(string)
		if !authenticated {
			return c.Next()
		}
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Role " + role + " may not do this",
		})
	}
}

// CallerID returns the authenticated caller, or "" when auth is disabled.
func CallerID(c *fiber.Ctx) string {
	id, _ := c.Locals(localCallerID).(string)
	return id
}

// CallerRole returns the authenticated caller's role, or "".
func CallerRole(c *fiber.Ctx) string {
	role, _ := c.Locals(localCallerRole).(string)
	return role
}

// IssueToken signs a token for subject with the given role.
func IssueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
