package formguard

// Package formguard provides:
//
// - A field-scoped validation engine for form models (form.Form): per-field debounce,
//   last-edit-wins cancellation, and related-field revalidation fan-out
// - Declarative rule suites composed from pure values (suite), with guarded rules and
//   nested sub-suites under a field-key prefix
// - A stable error model via Issues (field key, code, message, severity)
// - Flicker-free presentation of validity while a field is pending (display)
//
// Design policy:
// - Keep only the shared model types in the root package; put the engine under form/,
//   rule composition under suite/ and rules/, and the CLI under cmd/formguard.
// - Suites are immutable values. There is no global rule registry.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//  s := suite.New(
//  	suite.Test("name", "Name is required", rules.NotBlank("name")),
//  )
//  f := form.New(s, cfg)
//  f.Edit(model, "name")
//  v := f.ValidityOf("name")
//
