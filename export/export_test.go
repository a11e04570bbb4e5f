package export

// Exported aliases for testing internal functions from
// the export_test package.

// CalculateDigestForTest exposes calculateDigest.
var CalculateDigestForTest = calculateDigest

// VerifyDigestForTest exposes verifyDigest.
var VerifyDigestForTest = verifyDigest

// SaveDigestForTest exposes saveDigest.
var SaveDigestForTest = saveDigest

// InstanceDirForTest exposes Store.instanceDir.
func (s *Store) InstanceDirForTest(label string) string {
	return s.instanceDir(label)
}
