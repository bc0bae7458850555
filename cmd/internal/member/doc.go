// Package member resolves external Google logins into stable UniDash members.
//
// Membership is restricted to a single organizational email domain. A member
// is created on first successful login and has name/avatar refreshed on every
// subsequent one; members are never deleted here.
package member
