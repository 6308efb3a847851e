// Package core provides the business logic for GIIS export operations.
//
// This package turns a tenant's clinical records for one reporting month into
// the regulator's files. It has no transport dependencies and is used by the
// HTTP server, the giisctl tool, and tests alike.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Guides: Each report type (LES, CDT, CEX) registers a [GuideDefinition]
//     whose Build function maps records to schema-complete rows.
//   - Validation: Rows are checked against their guide schema and the
//     catalogs. Blockers exclude a row, warnings keep it.
//   - Batches: A [Batch] tracks one tenant and period through generation,
//     with a status machine driven by [NextStatus].
//   - Deliverables: Text artifacts are sealed with 3DES, zipped and hashed.
//   - Audit: Every generation and seal is recorded through an [AuditSink].
//
// # Guide Registry
//
// Guides are registered at init time using [Register]:
//
//	core.Register(core.GuideDefinition{
//	    Code:           "CDT",
//	    Label:          "Detecciones",
//	    NumericDefault: "0",
//	    Build:          buildCDT,
//	})
//
// # Generation
//
// [Service.GenerateArtifact] runs one guide for a batch:
//
//  1. The guide's Build function fetches the period's records through [RecordSource]
//  2. [ValidateAndFilter] splits rows into accepted rows, excluded rows and warnings
//  3. Accepted rows are serialized and written under the official file name
//  4. The excluded-row report and validation status are merged into the batch
//
// [Service.GenerateAll] runs every planned guide concurrently, bounded by the
// [GenerationLimiter]. [Service.PreValidate] runs steps 1 and 2 only.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - GEN001-GEN008: Batch and generation errors
//   - VAL001-VAL002: Blockers present, warnings unconfirmed
//   - SEAL001-SEAL004: Key, IV, container and archive errors
//   - CFG001-CFG002: Schema and encoding configuration
//   - DB001-DB004, IO001-IO003: Storage and filesystem errors
//
// # Audit Logging
//
// Audit entries carry a severity:
//
//   - Low: Artifacts generated without findings
//   - Medium: Artifacts generated with excluded rows
//   - High: Deliverables sealed
package core
