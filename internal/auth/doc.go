// Package auth defines the authenticated principal shared by the HTTP and
// realtime surfaces: its closed role enumeration, its open permission set,
// and the helpers for carrying it through a context.
//
// Token encoding lives in the jwt subpackage; access decisions live in
// package authz.
package auth
