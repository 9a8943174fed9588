// Package storagetest holds the behavioral tests every storage engine must pass.
//
// Engine packages call Run from their own tests with a constructor for a fresh,
// migrated store:
//
//	func TestContract(t *testing.T) {
//	    storagetest.Run(t, func(t *testing.T) storagetest.Engine { ... })
//	}
package storagetest
