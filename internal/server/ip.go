package server

import (
	"net"
	"net/http"
	"strings"
)

// ------------------------------------------------------------
// 클라이언트 IP 추출 (로그용)
//
// 진단 도구라 사내망/로컬에서 쓰는 경우가 많다. 그래서 proxy 헤더에서는
// public IP 를 우선하되, 없으면 private 주소라도 RemoteAddr 를 그대로 쓴다.
// 인가(authorization)에는 쓰지 않는다.
// ------------------------------------------------------------

func isPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !ip.IsPrivate() &&
		!ip.IsLoopback() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsUnspecified()
}

func parseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

// clientIP 우선순위:
//  1. X-Forwarded-For 의 첫 번째 public IP
//  2. X-Real-IP (public 일 때)
//  3. RemoteAddr (private 이어도 사용)
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := parseIP(part); isPublicIP(ip) {
				return ip.String()
			}
		}
	}

	if ip := parseIP(r.Header.Get("X-Real-IP")); isPublicIP(ip) {
		return ip.String()
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := parseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
