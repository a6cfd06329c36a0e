// Package auth provides authentication and authorisation for Glove Core.
//
// It implements a 2-tier role model (user → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT HS256 access tokens validated by signature only
//   - Seed admin account created on first boot when no users exist
//
// Regular users only see their own devices, bindings and learning records.
// Admins manage the device registry and can operate on any user's data.
package auth
