// Package filewarden decides whether untrusted user-supplied files are safe
// to store and analyze, and contains the ones that are not.
//
// The detection core lives in the filescanner subpackage: filename
// sanitization, content inspection, and threat classification over raw
// bytes, all pure computation. This package supplies everything around it:
// secure storage path derivation, the quarantine lifecycle, batch session
// scanning, and the storage plumbing those need.
//
// Storage is accessed through the FileSystem interface family, with
// adapters under driver/ (local disk, in-memory). Persisted file records
// go through the Repository interface, with stores under repo/ (in-memory,
// GORM/SQL). Both are narrow on purpose so tests can substitute fakes.
//
// Service is the assembly point. A typical embedding:
//
//	fs, _ := local.New("./storage")
//	repo := memrepo.New()
//	svc, err := filewarden.New(cfg, fs, repo)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	rec, verdict, err := svc.Ingest(ctx, &filewarden.UploadCandidate{
//		Bytes:        data,
//		Filename:     "crash.log",
//		DeclaredType: "text/plain",
//		OwnerID:      userID,
//		SessionID:    sessionID,
//	})
//
// Files that classify as malicious are isolated under a quarantine subtree
// via an atomic copy-verify-seal sequence and can later be released, with
// forced releases retained for audit. See QuarantineManager for the state
// machine and its guarantees.
package filewarden
