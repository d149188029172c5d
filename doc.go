// Package userkit provides a credential and token lifecycle engine: salted
// PBKDF2 password hashing, purpose bound verification codes, signed and
// encrypted bearer tokens, and a Manager that orchestrates sign up, login,
// email confirmation, password redefinition and two factor flows.
//
// User lifecycle:
//   - A user is either unconfirmed or confirmed, and has two factor
//     authentication on or off. Manager operations move users between those
//     states and report expected outcomes (wrong password, unknown user,
//     invalid code) through Result statuses. The error return is kept for
//     infrastructure faults.
//   - Users are found through a UserFinder, a bun query modifier, so callers
//     decide how a user is matched (FindByEmail, FindByID or their own).
//   - Manager is generic over ManagedUser. User is the default bun model;
//     applications can bring their own as long as it has an email column.
//
// Verification codes:
//   - Codes are scoped to (user, code, purpose), expire after a TTL and are
//     consumed with a compare-and-delete, so only the first redeemer wins.
//     Issuing a code discards the outstanding codes of the same purpose
//     unless disabled on the CodeStore.
//   - Codes live in the relational store by default; redisstore offers a
//     redis backed CodeRepository.
//
// Messages are dispatched through a MessageGateway after the issuing
// transaction commits. Messenger renders templates and ships them through a
// Transport: SMTPTransport for real delivery, LogTransport for development.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Manager to describe
//     sign up, confirmation, password, two factor and login events. Sinks run
//     best-effort (errors are logged).
//
// Claims decoration:
//   - ClaimsDecorator is invoked before tokens are built. Decorators may add
//     application claims; the identity claims (sub, email, email-confirmed)
//     should be left alone.
//
// The httpapi package serves these flows as a JSON API on fiber.
package userkit
