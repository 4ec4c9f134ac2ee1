package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClientInfo identifies the caller of a request for audit records
type ClientInfo struct {
	IP        string
	UserAgent string
	Device    DeviceInfo
}

// ClientFromRequest collects the caller's address and device
func ClientFromRequest(c *gin.Context) ClientInfo {
	agent := GetUserAgent(c)
	return ClientInfo{
		IP:        GetRealIP(c),
		UserAgent: agent,
		Device:    ParseUserAgent(agent),
	}
}

// GetRealIP extracts the client IP address from the request.
//
// Priority order:
//  1. X-Real-IP, when it carries a public address
//  2. the first public address in X-Forwarded-For, else its first valid entry
//  3. gin's ClientIP
func GetRealIP(c *gin.Context) string {
	realIP := strings.TrimSpace(c.Request.Header.Get("X-Real-IP"))
	if ip := net.ParseIP(realIP); ip != nil && !isPrivateIP(ip) {
		return realIP
	}

	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for _, hop := range hops {
			candidate := strings.TrimSpace(hop)
			if ip := net.ParseIP(candidate); ip != nil && !isPrivateIP(ip) && !ip.IsLoopback() {
				return candidate
			}
		}
		if first := strings.TrimSpace(hops[0]); net.ParseIP(first) != nil {
			return first
		}
	}

	return c.ClientIP()
}

// GetUserAgent extracts the User-Agent header from the request
func GetUserAgent(c *gin.Context) string {
	agent := c.Request.UserAgent()
	if agent == "" {
		return "Unknown"
	}
	return agent
}

func isPrivateIP(ip net.IP) bool {
	return ip != nil && ip.IsPrivate()
}
