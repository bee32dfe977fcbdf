package hashindex

// A bucket splits when an insert finds it full: the directory doubles
// only if the bucket's local depth has caught up to the global depth,
// then the bucket's entries partition across it and a freshly allocated
// split image by the bit that depth increase just made significant.
//
// A bucket merges back into its split image once Remove leaves it empty
// and the image sits at the same local depth; the directory then shrinks
// in one pass for as long as every slot's local depth is below the new
// global depth. Merging never cascades into a second merge within the
// same call.
