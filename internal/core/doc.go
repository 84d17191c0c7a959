// Package core provides the business logic for file import operations.
//
// This package contains all domain logic independent of any transport or
// storage layer. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Parsing: [ParseFile] turns CSV, JSON, spreadsheet and markup uploads
//     into a uniform [ParsedData] with per-cell type coercion.
//   - Mapping: [AutoMap] pairs source headers with the columns of a
//     [TableSchema] registered via [Register].
//   - Validation: [Validator] coerces mapped values, applies rules and
//     transforms, and groups duplicate values of unique columns.
//   - Policy: [Permission] gates preview, validation and import per actor.
//   - Controller: [Controller] runs jobs through the state machine and hands
//     accepted rows to a [Sink].
//
// # Job Lifecycle
//
// A submitted job moves forward only:
//
//	pending -> parsing -> validating -> importing -> completed
//
// Any live job may end as failed or cancelled. Terminal jobs never change
// again. When the sink answers with a job id, the controller polls it every
// [ControllerConfig.PollInterval] until the sink reports a terminal status.
// Progress is exposed through [Controller.Subscribe].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - PARSE001-PARSE008: Parse errors (empty file, headers, encoding)
//   - VAL001-VAL012: Validation errors (types, rules, transforms)
//   - POL001-POL010: Policy violations (permissions, limits, quotas)
//   - JOB001-JOB007: Job control errors (not found, retry limit)
//   - SINK001-SINK002, DB001-DB006: Import destination errors
//
// # Audit Logging
//
// Every job transition worth keeping is passed to a [Recorder] with a
// severity level:
//
//   - Low: Submissions, starts, holds for approval
//   - Medium: Retries, cancellations, cleared jobs
//   - High: Approvals, completed imports
//   - Critical: Failed imports
//
// Finished jobs and old history are purged on the schedule set by
// [RetentionConfig].
package core
