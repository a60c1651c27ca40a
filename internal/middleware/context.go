// internal/middleware/context.go
package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// ContextKeys for storing request metadata
type ContextKey string

const (
	ContextKeyIPAddress ContextKey = "ip_address"
	ContextKeyUserAgent ContextKey = "user_agent"
	ContextKeySession   ContextKey = "session"
)

// Keys used with fiber's c.Locals.
const (
	LocalsSession   = "session"
	LocalsIPAddress = "ip_address"
)

// ClientInfo extracts the caller's address and user agent and stores them in
// the request's user context so services can record them.
func ClientInfo() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := clientIP(c)
		ua := utils.CopyString(c.Get(fiber.HeaderUserAgent))

		ctx := c.UserContext()
		if ip != "" {
			ctx = context.WithValue(ctx, ContextKeyIPAddress, ip)
			c.Locals(LocalsIPAddress, ip)
		}
		if ua != "" {
			ctx = context.WithValue(ctx, ContextKeyUserAgent, ua)
		}
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// clientIP is the socket address, or the proxy header when the app trusts the
// peer (see TrustedProxyConfig). The result is copied out of fasthttp's
// request buffer so it may outlive the handler.
func clientIP(c *fiber.Ctx) string {
	return utils.CopyString(c.IP())
}

// TrustedProxyConfig sets the fiber options that make c.IP() read header only
// for requests arriving from one of proxies. Without proxies it leaves cfg
// alone and the socket address is used.
func TrustedProxyConfig(cfg fiber.Config, header string, proxies []string) fiber.Config {
	if len(proxies) == 0 {
		return cfg
	}
	if header == "" {
		header = fiber.HeaderXForwardedFor
	}
	cfg.ProxyHeader = header
	cfg.EnableTrustedProxyCheck = true
	cfg.TrustedProxies = proxies
	cfg.EnableIPValidation = true
	return cfg
}

// ClientIP returns the address resolved by ClientInfo, falling back to the
// socket address when the handler did not run.
func ClientIP(c *fiber.Ctx) string {
	if ip, ok := c.Locals(LocalsIPAddress).(string); ok && ip != "" {
		return ip
	}
	return clientIP(c)
}

// GetIPAddressFromContext extracts IP address from context
func GetIPAddressFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyIPAddress).(string); ok {
		return ip
	}
	return ""
}

// GetUserAgentFromContext extracts user agent from context
func GetUserAgentFromContext(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// GetUserIDFromContext extracts the authenticated user's ID from context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok || s.UserID == "" {
		return "", false
	}
	return s.UserID, true
}

// RequestInfo is everything known about the caller of a request.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	UserID    string
	UserEmail string
	UserRole  string
}

// GetClientInfoFromContext extracts all client information from context
func GetClientInfoFromContext(ctx context.Context) *RequestInfo {
	info := &RequestInfo{
		IPAddress: GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
	}

	if s, ok := SessionFromContext(ctx); ok {
		info.UserID = s.UserID
		info.UserEmail = s.Email
		info.UserRole = string(s.Role)
	}

	return info
}
