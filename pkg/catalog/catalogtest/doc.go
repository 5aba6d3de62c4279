// Package catalogtest provides a conformance suite that every catalog.Store
// implementation must pass.
//
// Usage:
//
//	func TestConformance(t *testing.T) {
//		catalogtest.RunConformanceSuite(t, func(t *testing.T) (catalog.Store, catalogtest.Fixture) {
//			s := memory.New()
//			return s, s
//		})
//	}
package catalogtest
