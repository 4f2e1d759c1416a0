// Package token issues and verifies the JWT access tokens handed out by authservice.
package token
