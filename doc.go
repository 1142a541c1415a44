// Package ecsig compiles entity-component query and system signatures such
// as "Position, !Velocity, ?Mass, [in] CONTAINER.Transform, SYSTEM.Clock"
// into ordered term descriptors, and catalogs the signatures declared in
// C and C++ sources.
//
// # Compiling
//
// [Parse] hands each [Term] of a signature to a [Consumer], in order. The
// first structural error aborts the parse and is returned as a
// [*ParseError] matching one of [ErrInvalidSignature],
// [ErrInvalidExpression] or [ErrZeroNotAlone]:
//
//	err := ecsig.Parse("Position, [in] Velocity", func(t ecsig.Term) error {
//		fmt.Println(t)
//		return nil
//	})
//	var pe *ecsig.ParseError
//	if errors.As(err, &pe) {
//		fmt.Print(pe.Diagnostic())
//	}
//
// [NewParser] builds a configured [Parser]; [Terms], [CountTerms],
// [RequiresTableMatching] and [Validate] are convenience helpers.
//
// # Catalog
//
// An [Engine] finds signature declarations (ECS_SYSTEM, ECS_TYPE,
// ecs_new_system, ecs_query_new and any configured call) with tree-sitter,
// compiles them and stores signatures, terms and diagnostics in SQLite:
//
//	e, err := ecsig.New("ecsig.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	err = e.IndexDirectory(ctx, "path/to/project")
//	n, err := e.Lint(ctx)
//
//	writers, err := e.Query().Writers("Position")
//
// Unchanged files are skipped by content hash. [Engine.Watch] keeps the
// catalog current as files change.
//
// # Lint rules
//
// Lint rules are Risor scripts run once per valid signature. The embedded
// defaults live in the rules package; [WithRulesDir] and [WithRulesFS]
// replace them. See the internal/runtime package for the globals exposed
// to rules.
package ecsig
