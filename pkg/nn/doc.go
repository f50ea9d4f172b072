// Package nn is the trainable part of the image classifier.
//
// Images are embedded by a pretrained vision transformer outside of this module.
// What is trained here is the classification head on those embeddings:
// a linear layer with softmax cross-entropy, optimized by AdamW.
package nn
