// Package dmg models disk image mounting as a capability: a Mounter
// turns an image file into a browsable Volume. The default implementation
// shells out to hdiutil, the platform tool for Apple disk images; tests
// substitute fakes so version extraction needs no privileged mounts.
package dmg
