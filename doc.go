/*
Package librepo is a client library for fetching RPM-style package
repository content — repomd.xml indices, the data files they reference,
and individual packages — over HTTP(S)/FTP/file mirrors.

librepo provides the orchestration around that transfer: mirror selection
with per-host concurrency caps, parallel transfer scheduling, automatic
mirror failover, checksum verification with xattr-cached results, detached
OpenPGP signature verification, and mirrorlist/metalink discovery.

The main packages are:

	github.com/go-librepo/librepo/internal/digest     - streaming checksums with xattr caching
	github.com/go-librepo/librepo/internal/mirrorlist - plain-text mirrorlist parsing
	github.com/go-librepo/librepo/internal/metalink   - metalink XML parsing
	github.com/go-librepo/librepo/internal/repomd     - repomd.xml parsing
	github.com/go-librepo/librepo/internal/urlsubst   - $var/${var} URL substitution
	github.com/go-librepo/librepo/internal/pgp        - detached signature verification
	github.com/go-librepo/librepo/internal/mirror     - mirror pool and fastest-mirror probe
	github.com/go-librepo/librepo/internal/target     - download target records
	github.com/go-librepo/librepo/internal/scheduler  - the parallel transfer scheduler
	github.com/go-librepo/librepo/internal/metadata   - repomd.xml fetch/parse/verify flow
	github.com/go-librepo/librepo/internal/pkgfetch   - package-download façade
	github.com/go-librepo/librepo/internal/config     - handle/configuration object
	github.com/go-librepo/librepo/internal/discovery  - mirrorlist/metalink discovery glue
	github.com/go-librepo/librepo/cmd/librepo-fetch   - command-line interface
*/
package librepo
